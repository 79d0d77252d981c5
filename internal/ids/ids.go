// Package ids generates the sortable identifiers used for workflow instances,
// events and request correlation.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces lexicographically sortable identifiers. Within one
// generator, ids minted at the same millisecond stay strictly increasing, so
// id order matches creation order within a process. The zero value is not
// usable; construct with NewGenerator.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator returns a Generator backed by crypto/rand entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// At mints an identifier carrying the given timestamp. Mostly useful in tests
// that need deterministic time prefixes.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// New mints an identifier for the current time.
func (g *Generator) New() string {
	return g.At(time.Now())
}

var defaultGenerator = NewGenerator()

// New mints an identifier from the shared process-wide generator.
func New() string {
	return defaultGenerator.New()
}
