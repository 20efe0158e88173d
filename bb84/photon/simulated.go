package photon

import (
	"context"
	"math/rand"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// DefaultShots is the number of times a Simulated channel samples each batch.
var DefaultShots = 1024

// A Simulated is an in-process Channel that applies the BB84 measurement rule
// in closed form. A Simulated is not safe for concurrent use.
type Simulated struct {
	// Shots is the number of samples drawn per batch; the returned bits are one
	// of them, chosen uniformly, and Counts tallies all of them. Defaults to
	// DefaultShots.
	Shots int

	// Errors, if set, flips the outcome at every position whose bit is set,
	// regardless of basis. It models a noisy channel.
	Errors bitmap.Dense

	rand *rand.Rand
}

// NewSimulated returns a Simulated channel drawing its coin flips from r.
func NewSimulated(r *rand.Rand) *Simulated {
	return &Simulated{rand: r}
}

// Measure implements the Channel interface.
func (s *Simulated) Measure(ctx context.Context, b Batch) (Outcome, error) {
	if err := b.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	shots := s.Shots
	if shots <= 0 {
		shots = DefaultShots
	}
	n := b.Size()
	mismatched := bitmap.XOr(b.Bases, b.Measure)
	noise := bitmap.And(s.Errors, bitmap.Not(bitmap.NewDense(nil, n)))
	keep := s.rand.Intn(shots)

	var out bitmap.Dense
	counts := make(map[string]int)
	buf := make([]byte, bitmap.BytesFor(n))
	for shot := 0; shot < shots; shot++ {
		s.rand.Read(buf)
		flips := bitmap.And(bitmap.NewDense(buf, n), mismatched)
		bits := bitmap.XOr(bitmap.XOr(b.Bits, flips), noise)
		counts[bits.String()]++
		if shot == keep {
			out = bits
		}
	}
	return Outcome{Bits: out, Counts: counts}, nil
}

// NoiseMask returns an n-bit Errors mask with round(n*p) bits set at positions
// chosen by r.
func NoiseMask(n int, p float64, r *rand.Rand) bitmap.Dense {
	errs := bitmap.NewDense(nil, n)
	k := min(n, int(float64(n)*p+0.5))
	for _, i := range r.Perm(n)[:k] {
		errs.Set(i, true)
	}
	return errs
}
