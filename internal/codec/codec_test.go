package codec

import "testing"

func TestResolveDefaults(t *testing.T) {
	enc, dec, err := Resolve("brimd.codec.jsoniter.dumps", "brimd.codec.jsoniter.loads")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	data, err := enc(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out map[string]int
	if err := dec(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["a"] != 1 {
		t.Errorf("out[a] = %d, want 1", out["a"])
	}
}

func TestResolveUnknownName(t *testing.T) {
	if _, _, err := Resolve("nonexistent", "brimd.codec.std.loads"); err == nil {
		t.Fatal("expected error for unknown encoder name")
	}
}
