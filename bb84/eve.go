package bb84

import (
	"context"
	"fmt"

	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/alan-christopher/qkd/bb84/photon"
)

// A Transmission records what happened to a batch between the sender and the
// receiver.
type Transmission struct {
	// Received holds the receiver's measured bits.
	Received bitmap.Dense

	// Intercepted marks the positions an eavesdropper touched. EveBases and
	// EveBits span the whole batch and are only meaningful where Intercepted is
	// set.
	Intercepted bitmap.Dense
	EveBases    bitmap.Dense
	EveBits     bitmap.Dense

	// Counts holds the diagnostic histogram of every channel invocation, in
	// order.
	Counts []map[string]int
}

// An Eavesdropper sits between sender and receiver. Transmit must deliver the
// sender's batch to the receiver, who measures in sent.Measure, and may
// invoke ch any number of times on the way.
type Eavesdropper interface {
	Transmit(ctx context.Context, ch photon.Channel, sent photon.Batch, src *Source) (Transmission, error)
}

// NoEavesdropper passes qubits straight to the receiver.
type NoEavesdropper struct{}

// Transmit implements the Eavesdropper interface.
func (NoEavesdropper) Transmit(ctx context.Context, ch photon.Channel, sent photon.Batch, _ *Source) (Transmission, error) {
	out, err := ch.Measure(ctx, sent)
	if err != nil {
		return Transmission{}, fmt.Errorf("measuring at receiver: %w", err)
	}
	return Transmission{
		Received: out.Bits,
		Counts:   []map[string]int{out.Counts},
	}, nil
}

// InterceptResend measures every qubit in a basis of its own choosing and
// resends what it saw, prepared in that same basis. Against uniformly random
// bases this corrupts a quarter of the sifted key.
type InterceptResend struct {
	// ChooseBases, if non-nil, picks the eavesdropper's bases for a batch.
	// Otherwise they are drawn uniformly from the run's Source.
	ChooseBases func(sent photon.Batch, src *Source) bitmap.Dense
}

// Transmit implements the Eavesdropper interface.
func (ir InterceptResend) Transmit(ctx context.Context, ch photon.Channel, sent photon.Batch, src *Source) (Transmission, error) {
	n := sent.Size()
	var eveBases bitmap.Dense
	if ir.ChooseBases != nil {
		eveBases = ir.ChooseBases(sent, src)
	} else {
		eveBases = src.Bases(n)
	}
	intercepted, err := ch.Measure(ctx, photon.Batch{
		Bits:    sent.Bits,
		Bases:   sent.Bases,
		Measure: eveBases,
	})
	if err != nil {
		return Transmission{}, fmt.Errorf("measuring at eavesdropper: %w", err)
	}
	resent, err := ch.Measure(ctx, photon.Batch{
		Bits:    intercepted.Bits,
		Bases:   eveBases,
		Measure: sent.Measure,
	})
	if err != nil {
		return Transmission{}, fmt.Errorf("measuring at receiver: %w", err)
	}
	return Transmission{
		Received:    resent.Bits,
		Intercepted: bitmap.Not(bitmap.NewDense(nil, n)),
		EveBases:    eveBases,
		EveBits:     intercepted.Bits,
		Counts:      []map[string]int{intercepted.Counts, resent.Counts},
	}, nil
}

// PassiveSample intercepts only the even positions. Each intercepted qubit is
// measured in a random basis, reset to 0, flipped with probability one half,
// and re-encoded in the sender's own basis before being forwarded. Odd
// positions travel untouched.
type PassiveSample struct {
	// NoReflip forwards intercepted qubits in their reset state instead of
	// flipping them at random.
	NoReflip bool
}

// Transmit implements the Eavesdropper interface.
func (ps PassiveSample) Transmit(ctx context.Context, ch photon.Channel, sent photon.Batch, src *Source) (Transmission, error) {
	n := sent.Size()
	mask := bitmap.NewDense(nil, n)
	for i := 0; i < n; i += 2 {
		mask.Set(i, true)
	}
	k := bitmap.CountOnes(mask)
	subBases := src.Bases(k)
	intercepted, err := ch.Measure(ctx, photon.Batch{
		Bits:    bitmap.Select(sent.Bits, mask),
		Bases:   bitmap.Select(sent.Bases, mask),
		Measure: subBases,
	})
	if err != nil {
		return Transmission{}, fmt.Errorf("measuring at eavesdropper: %w", err)
	}

	eveBases := bitmap.NewDense(nil, n)
	eveBits := bitmap.NewDense(nil, n)
	forwarded := sent.Bits.Clone()
	for j, i := range bitmap.Positions(mask) {
		eveBases.Set(i, subBases.Get(j))
		eveBits.Set(i, intercepted.Bits.Get(j))
		forwarded.Set(i, !ps.NoReflip && src.Coin())
	}
	received, err := ch.Measure(ctx, photon.Batch{
		Bits:    forwarded,
		Bases:   sent.Bases,
		Measure: sent.Measure,
	})
	if err != nil {
		return Transmission{}, fmt.Errorf("measuring at receiver: %w", err)
	}
	return Transmission{
		Received:    received.Bits,
		Intercepted: mask,
		EveBases:    eveBases,
		EveBits:     eveBits,
		Counts:      []map[string]int{intercepted.Counts, received.Counts},
	}, nil
}
