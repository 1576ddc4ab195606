package idgenerator

import "sync/atomic"

// IdGenerator hands out increasing uint32 session ids. It is safe for
// concurrent use. Zero is never issued: after the counter wraps, the next
// value is 1 again.
type IdGenerator struct {
	last atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id is startValue+1.
//
// Parameters:
//   - startValue: The last id considered issued
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.last.Store(startValue)
	return gen
}

// Id returns the next id.
func (g *IdGenerator) Id() uint32 {
	for {
		id := g.last.Add(1)
		if id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued id, or the start value if none was
// issued yet.
func (g *IdGenerator) Last() uint32 {
	return g.last.Load()
}
