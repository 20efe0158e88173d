package bb84

import (
	"context"
	"fmt"
	"testing"

	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/alan-christopher/qkd/bb84/photon"
)

func mustDense(t *testing.T, s string) bitmap.Dense {
	d, err := bitmap.FromString(s)
	if err != nil {
		t.Fatalf("bugged test setup: %v", err)
	}
	return d
}

// fixed returns a draw function that always yields d.
func fixed(d bitmap.Dense) func(int) bitmap.Dense {
	return func(int) bitmap.Dense { return d }
}

// A checkingChannel wraps a Channel, counts invocations, and verifies the
// measurement rule on every outcome it passes through.
type checkingChannel struct {
	t     *testing.T
	inner photon.Channel
	calls int
}

func (c *checkingChannel) Measure(ctx context.Context, b photon.Batch) (photon.Outcome, error) {
	c.calls++
	out, err := c.inner.Measure(ctx, b)
	if err != nil {
		return out, err
	}
	if out.Bits.Size() != b.Size() {
		c.t.Errorf("call %d: got %d outcomes for %d qubits", c.calls, out.Bits.Size(), b.Size())
	}
	for i := 0; i < b.Size(); i++ {
		if b.Bases.Get(i) == b.Measure.Get(i) && out.Bits.Get(i) != b.Bits.Get(i) {
			c.t.Errorf("call %d: qubit %d measured in its preparation basis changed value", c.calls, i)
		}
	}
	return out, nil
}

// A failingChannel refuses every batch.
type failingChannel struct{}

func (failingChannel) Measure(context.Context, photon.Batch) (photon.Outcome, error) {
	return photon.Outcome{}, fmt.Errorf("%w: backend offline", photon.ErrChannel)
}

// newChannel returns a fast, noiseless simulated channel seeded from src.
func newChannel(src *Source) *photon.Simulated {
	ch := photon.NewSimulated(src.Fork())
	ch.Shots = 1
	return ch
}

// zeros returns n zero bits, e.g. n rectilinear bases.
func zeros(n int) bitmap.Dense {
	return bitmap.NewDense(nil, n)
}
