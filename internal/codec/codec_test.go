package codec

import (
	"bytes"
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	a := []byte(`{"b":1,"a":{"z":true,"y":[1,2,{"k":"v"}]}}`)
	b := []byte(`{"a":{"y":[1,2,{"k":"v"}],"z":true},"b":1}`)

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}

	if !bytes.Equal(ca, cb) {
		t.Errorf("expected equal canonical forms, got %s vs %s", ca, cb)
	}

	expected := `{"a":{"y":[1,2,{"k":"v"}],"z":true},"b":1}`
	if string(ca) != expected {
		t.Errorf("expected %s, got %s", expected, ca)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	in := []byte(`{"name":"Alice","n":1000,"pi":3.14,"tags":["x","y"],"nested":{"b":null,"a":false}}`)

	once, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	twice, err := Canonicalize(once)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}

	if !bytes.Equal(once, twice) {
		t.Errorf("canonicalize not idempotent: %s vs %s", once, twice)
	}
}

func TestCanonicalizePreservesNumberFormatting(t *testing.T) {
	in := []byte(`{"int":1000,"dec":1.50,"exp":1e3}`)

	out, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}

	expected := `{"dec":1.50,"exp":1e3,"int":1000}`
	if string(out) != expected {
		t.Errorf("expected %s, got %s", expected, out)
	}
}

func TestCanonicalizeRejectsInvalidJSON(t *testing.T) {
	if _, err := Canonicalize([]byte(`{"broken":`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEqual(t *testing.T) {
	a := []byte(`{"id":"u1","name":"Alice"}`)
	b := []byte(`{"name":"Alice","id":"u1"}`)
	c := []byte(`{"id":"u1","name":"Bob"}`)

	eq, err := Equal(a, b)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if !eq {
		t.Error("expected equal documents")
	}

	eq, err = Equal(a, c)
	if err != nil {
		t.Fatalf("Equal failed: %v", err)
	}
	if eq {
		t.Error("expected unequal documents")
	}
}

type user struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Tags map[string]any `json:"tags,omitempty"`
}

func TestCanonicalStruct(t *testing.T) {
	u := user{ID: "u1", Name: "Alice", Tags: map[string]any{"b": 1, "a": 2}}

	first, err := Canonical(u)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	second, err := Canonical(u)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("canonical serialization not stable: %s vs %s", first, second)
	}
}

func TestClone(t *testing.T) {
	u := user{ID: "u1", Name: "Alice", Tags: map[string]any{"a": "x"}}

	clone, err := Clone(u)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	clone.Tags["a"] = "mutated"
	if u.Tags["a"] != "x" {
		t.Error("clone shares state with original")
	}
	if clone.ID != u.ID || clone.Name != u.Name {
		t.Errorf("clone lost fields: %+v", clone)
	}
}
