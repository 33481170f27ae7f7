// Package ticket holds what both workflows share: the ticket-number
// generator, name normalisation and the error taxonomy surfaced to callers.
package ticket

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	suffixLen      = 4
	suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Generator mints ticket numbers of the form PREFIX + last six digits of the
// millisecond clock + four random upper-case alphanumerics, e.g. TMSS482913K7QZ.
// Uniqueness is probabilistic; the table's unique index is the real guard.
type Generator struct {
	Prefix string
	Now    func() time.Time
	Suffix func() string
}

// NewGenerator creates a generator with the wall clock and a uuid-derived suffix.
func NewGenerator(prefix string) *Generator {
	return &Generator{Prefix: prefix, Now: time.Now, Suffix: randomSuffix}
}

// Next returns a fresh ticket number.
func (g *Generator) Next() string {
	ms := strconv.FormatInt(g.Now().UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return g.Prefix + ms + g.Suffix()
}

// PersonCode returns a student code, "S-" followed by a ticket number.
func (g *Generator) PersonCode() string {
	return "S-" + g.Next()
}

// randomSuffix draws base36 characters from the random leading bytes of a v4 uuid.
func randomSuffix() string {
	id := uuid.New()
	var b strings.Builder
	b.Grow(suffixLen)
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(suffixAlphabet[int(id[i])%len(suffixAlphabet)])
	}
	return b.String()
}
