package bb84

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// A Source produces the uniform bits and bases a protocol run consumes. A
// Source belongs to exactly one run and is not safe for concurrent use.
type Source struct {
	rand *rand.Rand
}

// NewSource returns a Source seeded from the operating system's entropy pool.
func NewSource() *Source {
	var seed int64
	if err := binary.Read(crand.Reader, binary.LittleEndian, &seed); err != nil {
		panic("bb84: reading entropy: " + err.Error())
	}
	return SeededSource(seed)
}

// SeededSource returns a reproducible Source.
func SeededSource(seed int64) *Source {
	return &Source{rand: rand.New(rand.NewSource(seed))}
}

// Bits returns n independent uniform bits.
func (s *Source) Bits(n int) bitmap.Dense {
	buf := make([]byte, bitmap.BytesFor(n))
	s.rand.Read(buf)
	return bitmap.NewDense(buf, n)
}

// Bases returns n independent uniform bases, 0 for Z and 1 for X.
func (s *Source) Bases(n int) bitmap.Dense {
	return s.Bits(n)
}

// Coin returns a single fair coin flip.
func (s *Source) Coin() bool {
	return s.rand.Int63()&1 == 1
}

// Fork returns a new generator seeded from s, for handing to collaborators
// such as a simulated channel without sharing s itself.
func (s *Source) Fork() *rand.Rand {
	return rand.New(rand.NewSource(s.rand.Int63()))
}
