package dependency

import "testing"

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindField, true},
		{KindCollection, true},
		{KindExternalAPI, true},
		{KindSystem, true},
		{KindComputedAttribute, true},
		{Kind("bogus"), false},
	}
	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("%s.Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestDependency_Validate(t *testing.T) {
	tests := []struct {
		name string
		dep  Dependency
		ok   bool
	}{
		{
			name: "valid attribute edge",
			dep:  Dependency{FromAttributeID: "a", ToAttributeID: "b", Kind: KindComputedAttribute},
			ok:   true,
		},
		{
			name: "valid external source edge",
			dep:  Dependency{FromAttributeID: "a", ExternalSource: "weather-api", Kind: KindExternalAPI},
			ok:   true,
		},
		{
			name: "missing source",
			dep:  Dependency{ToAttributeID: "b"},
			ok:   false,
		},
		{
			name: "missing target",
			dep:  Dependency{FromAttributeID: "a"},
			ok:   false,
		},
		{
			name: "both target forms set",
			dep:  Dependency{FromAttributeID: "a", ToAttributeID: "b", ExternalSource: "x"},
			ok:   false,
		},
		{
			name: "self loop",
			dep:  Dependency{FromAttributeID: "a", ToAttributeID: "a"},
			ok:   false,
		},
		{
			name: "invalid kind",
			dep:  Dependency{FromAttributeID: "a", ToAttributeID: "b", Kind: Kind("nope")},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestDependency_TargetsAttribute(t *testing.T) {
	d := Dependency{FromAttributeID: "a", ToAttributeID: "b"}
	if !d.TargetsAttribute() {
		t.Error("expected TargetsAttribute() to be true")
	}
	d2 := Dependency{FromAttributeID: "a", ExternalSource: "x"}
	if d2.TargetsAttribute() {
		t.Error("expected TargetsAttribute() to be false for external source")
	}
}
