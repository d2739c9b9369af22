package canonical

import (
	"math"
	"strings"
	"testing"
)

func TestCanonicalize_SortsKeysRecursively(t *testing.T) {
	v := map[string]any{
		"b": 2,
		"a": map[string]any{"z": true, "m": []any{"x", "y"}},
	}
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := `{"a":{"m":["x","y"],"z":true},"b":2}`
	if string(got) != want {
		t.Fatalf("canonical bytes mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestCanonicalize_Deterministic(t *testing.T) {
	type pulse struct {
		Pulse int    `json:"pulse"`
		Beat  int    `json:"beat"`
		Day   string `json:"chakraDay"`
	}
	a, err := Canonicalize(pulse{Pulse: 7, Beat: 13, Day: "Throat"})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	b, err := Canonicalize(map[string]any{"chakraDay": "Throat", "beat": 13, "pulse": 7})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("struct and map canonical forms differ:\n%s\n%s", a, b)
	}
}

func TestCanonicalize_ArrayOrderPreserved(t *testing.T) {
	got, err := Canonicalize([]any{3, 1, 2})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if string(got) != "[3,1,2]" {
		t.Fatalf("array order not preserved: %s", got)
	}
}

func TestCanonicalize_RejectsNonFinite(t *testing.T) {
	if _, err := Canonicalize(map[string]any{"x": math.NaN()}); err == nil {
		t.Fatalf("expected error for NaN")
	}
	if _, err := Canonicalize(math.Inf(1)); err == nil {
		t.Fatalf("expected error for +Inf")
	}
}

func TestHashValue_StableAcrossCalls(t *testing.T) {
	v := map[string]any{"pulse": 123, "beat": 4}
	h1, err := HashValue(v)
	if err != nil {
		t.Fatalf("HashValue: %v", err)
	}
	h2, err := HashValue(v)
	if err != nil {
		t.Fatalf("HashValue: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	if len(h1) != 64 || strings.ToLower(h1) != h1 {
		t.Fatalf("expected lowercase 64-char hex, got %q", h1)
	}
}

func TestEmptyHash(t *testing.T) {
	// sha256 of the empty string.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if EmptyHash() != want {
		t.Fatalf("EmptyHash = %s, want %s", EmptyHash(), want)
	}
}

func TestDigestFor_Algorithms(t *testing.T) {
	msg := []byte("lineage")
	for _, alg := range []string{"sha256", "sha512", "sha3-256"} {
		d, err := DigestFor(alg, msg)
		if err != nil {
			t.Fatalf("DigestFor(%s): %v", alg, err)
		}
		if len(d) == 0 {
			t.Fatalf("DigestFor(%s): empty digest", alg)
		}
	}
	if _, err := DigestFor("md5", msg); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}
