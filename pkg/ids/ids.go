package ids

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator issues record identifiers and golden record codes. It is injected
// into services so tests can use a deterministic implementation and so no
// global counter state exists outside the generator's own entropy source.
type Generator interface {
	// NewID returns a short opaque identifier for a new record or child entity.
	NewID() string
	// GoldenCode returns a short, human-readable, globally unique golden
	// record code.
	GoldenCode() string
}

// idLength keeps identifiers short enough to read in logs and UI tables while
// staying collision-resistant at this system's volumes.
const idLength = 8

// UUID is the production Generator, deriving short ids from UUIDv4 entropy.
type UUID struct{}

func NewUUID() *UUID { return &UUID{} }

func (*UUID) NewID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:idLength]
}

func (*UUID) GoldenCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GR-" + raw[:6]
}

// Sequence is a deterministic Generator for tests.
type Sequence struct {
	n atomic.Uint64
}

func NewSequence() *Sequence { return &Sequence{} }

func (s *Sequence) NewID() string {
	return fmt.Sprintf("id-%04d", s.n.Add(1))
}

func (s *Sequence) GoldenCode() string {
	return fmt.Sprintf("GR-%06d", s.n.Add(1))
}
