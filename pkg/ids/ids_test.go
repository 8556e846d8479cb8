package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDGenerator(t *testing.T) {
	gen := NewUUID()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.NewID()
		assert.Len(t, id, idLength)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	code := gen.GoldenCode()
	assert.True(t, strings.HasPrefix(code, "GR-"))
	assert.Len(t, code, len("GR-")+6)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequence()
	assert.Equal(t, "id-0001", gen.NewID())
	assert.Equal(t, "id-0002", gen.NewID())
	assert.Equal(t, "GR-000003", gen.GoldenCode())
}
