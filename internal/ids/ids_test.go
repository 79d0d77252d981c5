package ids

import (
	"testing"
	"time"
)

func TestNewIsUniqueAndOrdered(t *testing.T) {
	const n = 1000
	seen := make(map[string]struct{}, n)
	prev := ""
	for i := 0; i < n; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if id <= prev {
			t.Fatalf("ids not strictly increasing: %q after %q", id, prev)
		}
		prev = id
	}
}

func TestGeneratorAtSharesTimestampPrefix(t *testing.T) {
	gen := NewGenerator()
	at := time.Unix(1700000000, 0)
	a := gen.At(at)
	b := gen.At(at)
	// The first 10 characters encode the millisecond timestamp.
	if a[:10] != b[:10] {
		t.Fatalf("timestamp prefixes differ: %q vs %q", a, b)
	}
	if a >= b {
		t.Fatalf("same-millisecond ids must stay increasing: %q then %q", a, b)
	}
}

func TestGeneratorsAreIndependent(t *testing.T) {
	a := NewGenerator().New()
	b := NewGenerator().New()
	if a == b {
		t.Fatalf("independent generators collided: %q", a)
	}
}
