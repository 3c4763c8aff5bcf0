package cachekey

import (
	"testing"

	"github.com/attrengine/core/domain/attribute"
)

func TestKey_Canonical(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "without fingerprint",
			key:  Key{AttributeID: "age", TargetKind: attribute.TargetUser, TargetID: "u1"},
			want: "age:user:u1",
		},
		{
			name: "with fingerprint",
			key:  Key{AttributeID: "age", TargetKind: attribute.TargetUser, TargetID: "u1", ContextFingerprint: "abc123"},
			want: "age:user:u1:abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Canonical(); got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasAttributeAndTarget(t *testing.T) {
	canonical := Key{AttributeID: "age", TargetKind: attribute.TargetUser, TargetID: "u1"}.Canonical()

	if !HasAttributeAndTarget(canonical, "age", "") {
		t.Error("expected match with empty targetID filter")
	}
	if !HasAttributeAndTarget(canonical, "age", "u1") {
		t.Error("expected match with matching targetID filter")
	}
	if HasAttributeAndTarget(canonical, "age", "u2") {
		t.Error("expected no match for a different targetID")
	}
	if HasAttributeAndTarget(canonical, "height", "") {
		t.Error("expected no match for a different attributeID")
	}
}

func TestHasTarget(t *testing.T) {
	canonical := Key{AttributeID: "age", TargetKind: attribute.TargetUser, TargetID: "u1"}.Canonical()

	if !HasTarget(canonical, attribute.TargetUser, "u1") {
		t.Error("expected match")
	}
	if HasTarget(canonical, attribute.TargetDocument, "u1") {
		t.Error("expected no match for different target kind")
	}
}
