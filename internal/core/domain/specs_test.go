package domain

import (
	"encoding/json"
	"testing"
)

func TestSpecs_JSONRoundTrip(t *testing.T) {
	specs := NewSpecs(map[string]SpecValue{
		"color":    StringSpec("black"),
		"weightKg": NumberSpec(1.25),
		"wireless": BoolSpec(true),
		"dimensions": NestedSpec(NewSpecs(map[string]SpecValue{
			"w": NumberSpec(10),
			"h": NumberSpec(20),
		})),
	})

	data, err := json.Marshal(specs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Specs
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(specs) {
		t.Errorf("round trip mismatch: %s", data)
	}

	dims, ok := decoded.fields["dimensions"].AsNested()
	if !ok {
		t.Fatal("expected nested dimensions")
	}
	if h, _ := dims.fields["h"].AsNumber(); h != 20 {
		t.Errorf("expected h=20, got %v", h)
	}
}

func TestSpecs_RejectsNull(t *testing.T) {
	var s Specs
	if err := json.Unmarshal([]byte(`{"a":null}`), &s); err == nil {
		t.Error("expected error for null value")
	}
}

func TestSpecs_WithDoesNotAlias(t *testing.T) {
	base := NewSpecs(map[string]SpecValue{"a": StringSpec("x")})
	next := base.With("b", BoolSpec(false))

	if base.Has("b") {
		t.Error("With mutated the receiver")
	}
	if next.Len() != 2 {
		t.Errorf("expected 2 fields, got %d", next.Len())
	}
	if keys := next.Keys(); keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestSnapshotOf_UsesImageSpec(t *testing.T) {
	p := Product{Title: "T", Specs: NewSpecs(map[string]SpecValue{"imageUrl": StringSpec("https://img/1.png")})}
	if s := SnapshotOf(p); s.Image != "https://img/1.png" {
		t.Errorf("unexpected image %q", s.Image)
	}
}
