package contextbuilder

import (
	"testing"

	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/dependency"
	"github.com/attrengine/core/internal/obs/errors"
)

type testUser struct {
	Name    string `json:"name"`
	Profile struct {
		City string `json:"city"`
	} `json:"profile"`
}

func TestBuilder_Build_RejectsMissingTargetID(t *testing.T) {
	b := New(Config{})
	_, err := b.Build(Request{TargetKind: attribute.TargetUser})
	if !errors.Is(err, errors.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuilder_Build_RejectsInvalidTargetKind(t *testing.T) {
	b := New(Config{})
	_, err := b.Build(Request{TargetID: "u1", TargetKind: "bogus"})
	if !errors.Is(err, errors.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuilder_Build_RequiresDatabaseWhenEnabled(t *testing.T) {
	b := New(Config{AllowDatabase: true})
	_, err := b.Build(Request{TargetID: "u1", TargetKind: attribute.TargetUser})
	if err == nil {
		t.Error("expected error when AllowDatabase is set but no handle provided")
	}
}

func TestBuilder_Build_RestrictsCapabilitiesByPolicy(t *testing.T) {
	b := New(Config{})
	cc, err := b.Build(Request{
		TargetID: "u1", TargetKind: attribute.TargetUser,
		CurrentUser: "someone", Database: "db-handle",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cc.Database != nil {
		t.Error("expected Database to be withheld when AllowDatabase is false")
	}
	if cc.CurrentUser != nil {
		t.Error("expected CurrentUser to be withheld when AllowUserContext is false")
	}
}

func TestBuilder_Build_ProjectsFieldDependencies(t *testing.T) {
	b := New(Config{})
	target := testUser{Name: "Ada"}
	target.Profile.City = "London"

	deps := []dependency.Dependency{
		{Kind: dependency.KindField, ExternalSource: "name"},
		{Kind: dependency.KindField, ExternalSource: "profile.city"},
		{Kind: dependency.KindComputedAttribute, ToAttributeID: "other"}, // ignored, not a field dep
	}

	cc, err := b.Build(Request{
		Target: target, TargetID: "u1", TargetKind: attribute.TargetUser, FieldDependencies: deps,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cc.CustomData["name"] != "Ada" {
		t.Errorf("CustomData[name] = %v, want Ada", cc.CustomData["name"])
	}
	if cc.CustomData["profile.city"] != "London" {
		t.Errorf("CustomData[profile.city] = %v, want London", cc.CustomData["profile.city"])
	}
}

func TestBuilder_Build_RejectsOversizedCustomData(t *testing.T) {
	b := New(Config{MaxCustomDataBytes: 4})
	target := testUser{Name: "a very long name that exceeds the bound"}

	deps := []dependency.Dependency{{Kind: dependency.KindField, ExternalSource: "name"}}

	_, err := b.Build(Request{
		Target: target, TargetID: "u1", TargetKind: attribute.TargetUser, FieldDependencies: deps,
	})
	if err == nil {
		t.Error("expected error for oversized customData")
	}
}

func TestBuilder_BuildForUser(t *testing.T) {
	b := New(Config{AllowDatabase: true})
	cc, err := b.BuildForUser("u1", testUser{Name: "Ada"}, "db", nil, nil)
	if err != nil {
		t.Fatalf("BuildForUser() error = %v", err)
	}
	if cc.TargetKind != attribute.TargetUser {
		t.Errorf("TargetKind = %v, want user", cc.TargetKind)
	}
	if cc.Database != "db" {
		t.Errorf("Database = %v, want db", cc.Database)
	}
}
