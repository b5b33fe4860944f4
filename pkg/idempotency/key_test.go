package idempotency

import "testing"

func TestKeyStableAcrossFieldOrder(t *testing.T) {
	p1 := map[string]any{"a": 1.0, "b": 2.0}
	p2 := map[string]any{"b": 2.0, "a": 1.0}

	k1, err := Key("benevity", p1, "")
	if err != nil {
		t.Fatalf("Key() error: %v", err)
	}
	k2, err := Key("benevity", p2, "")
	if err != nil {
		t.Fatalf("Key() error: %v", err)
	}

	if k1 != k2 {
		t.Errorf("expected stable key across field order, got %s != %s", k1, k2)
	}
}

func TestKeyStableAcrossNilFields(t *testing.T) {
	p1 := map[string]any{"a": 1.0, "b": nil}
	p2 := map[string]any{"a": 1.0}

	k1, _ := Key("benevity", p1, "")
	k2, _ := Key("benevity", p2, "")

	if k1 != k2 {
		t.Errorf("expected nil fields to be stripped, got %s != %s", k1, k2)
	}
}

func TestKeyDiffersAcrossPartner(t *testing.T) {
	p := map[string]any{"a": 1.0}
	k1, _ := Key("benevity", p, "")
	k2, _ := Key("workday", p, "")
	if k1 == k2 {
		t.Error("expected different partners to produce different keys")
	}
}

func TestKeyDiffersOnSemanticChange(t *testing.T) {
	p1 := map[string]any{"a": 1.0}
	p2 := map[string]any{"a": 2.0}
	k1, _ := Key("benevity", p1, "")
	k2, _ := Key("benevity", p2, "")
	if k1 == k2 {
		t.Error("expected different payload values to produce different keys")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	p := map[string]any{"a": 1.0, "b": nil, "c": []any{1.0, nil, 2.0}}
	once := Normalize(p)
	twice := Normalize(once)

	k1, _ := canonicalJSON(once)
	k2, _ := canonicalJSON(twice)
	if string(k1) != string(k2) {
		t.Errorf("expected Normalize to be idempotent, got %s != %s", k1, k2)
	}
}
