package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	p := []byte(`{"column":"pop","operation":"sum"}`)
	k1 := ResultKey("carto.places", 3, "formula", p)
	k2 := ResultKey("carto.places", 3, "formula", p)
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestNormalization_WhitespaceInParamsIgnored(t *testing.T) {
	k1 := ResultKey("ds", 1, "histogram", []byte(`{"ticks": [1, 2, 3]}`))
	k2 := ResultKey("ds", 1, "histogram", []byte("{\n  \"ticks\":[1,2,3]\n}"))
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestDifference(t *testing.T) {
	base := ResultKey("ds", 1, "formula", []byte(`{"operation":"sum"}`))
	for name, k := range map[string]string{
		"version": ResultKey("ds", 2, "formula", []byte(`{"operation":"sum"}`)),
		"method":  ResultKey("ds", 1, "groupBy", []byte(`{"operation":"sum"}`)),
		"params":  ResultKey("ds", 1, "formula", []byte(`{"operation":"avg"}`)),
		"dataset": ResultKey("ds2", 1, "formula", []byte(`{"operation":"sum"}`)),
	} {
		if k == base {
			t.Fatalf("%s change must produce a different key", name)
		}
	}
}

func TestDatasetPrefix_SanitizedAndDistinct(t *testing.T) {
	k := ResultKey("a:b göteborg", 1, "formula", nil)
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !strings.HasPrefix(k, DatasetPrefix("a:b göteborg")) {
		t.Fatalf("key %s lacks its dataset prefix", k)
	}
	if DatasetPrefix("a:b") == DatasetPrefix("a-b") {
		t.Fatalf("sanitized collisions must stay distinct")
	}
	if !regexp.MustCompile(`:p=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("missing params hash suffix: %s", k)
	}
}
