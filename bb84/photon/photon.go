// Package photon models the quantum half of BB84: qubits prepared in one of two
// conjugate bases and measured, as a batch, by a Channel.
package photon

import (
	"context"
	"errors"
	"fmt"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

var (
	// ErrInvalidRequest reports an empty batch or one whose sequences disagree
	// in length. It is always the caller's fault.
	ErrInvalidRequest = errors.New("photon: invalid channel request")

	// ErrChannel reports an unavailable backend or a malformed response.
	ErrChannel = errors.New("photon: channel error")
)

// A Basis selects the frame in which a qubit is prepared or measured.
type Basis int

const (
	// Rectilinear is the Z basis, stored as a 0 in basis bitmaps.
	Rectilinear Basis = iota
	// Diagonal is the X basis, stored as a 1 in basis bitmaps.
	Diagonal
)

func (b Basis) String() string {
	switch b {
	case Rectilinear:
		return "Z"
	case Diagonal:
		return "X"
	}
	return fmt.Sprintf("Basis(%d)", int(b))
}

// BasisAt reads the basis stored at position i of a basis bitmap.
func BasisAt(bases bitmap.Dense, i int) Basis {
	if bases.Get(i) {
		return Diagonal
	}
	return Rectilinear
}

// A Batch is one round's worth of qubits together with the bases they are to
// be measured in. All three bitmaps must have the same size.
type Batch struct {
	Bits    bitmap.Dense
	Bases   bitmap.Dense
	Measure bitmap.Dense
}

// Size returns the number of qubits in b.
func (b Batch) Size() int {
	return b.Bits.Size()
}

// Validate reports whether b is a well-formed measurement request.
func (b Batch) Validate() error {
	if b.Bits.Size() == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}
	if b.Bases.Size() != b.Bits.Size() {
		return fmt.Errorf("%w: bit and basis length must agree: %d != %d",
			ErrInvalidRequest, b.Bits.Size(), b.Bases.Size())
	}
	if b.Measure.Size() != b.Bits.Size() {
		return fmt.Errorf("%w: measurement basis length must match batch: %d != %d",
			ErrInvalidRequest, b.Measure.Size(), b.Bits.Size())
	}
	return nil
}

// An Outcome holds the measured bits of a batch, in batch order, along with a
// histogram of the raw results the backend produced. Counts is diagnostic
// only; nothing in the protocol interprets it.
type Outcome struct {
	Bits   bitmap.Dense
	Counts map[string]int
}

// A Channel measures batches of prepared qubits. Where a qubit's measurement
// basis equals its preparation basis the outcome is its prepared bit; otherwise
// the outcome is a fair coin, independent of the prepared bit.
//
// Implementations must return exactly one outcome bit per qubit, fail with
// ErrInvalidRequest on malformed batches, and with ErrChannel when the backend
// cannot produce a result.
type Channel interface {
	Measure(ctx context.Context, b Batch) (Outcome, error)
}
