package bb84

import (
	"fmt"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// DefaultBlockSize is the block length BlockParity uses when none is given.
const DefaultBlockSize = 4

// A Reconciled is the receiver's key after error correction.
type Reconciled struct {
	Key bitmap.Dense

	// Corrections counts the bits flipped during reconciliation.
	Corrections int
}

// A Reconciler performs "error correction" on the receiver's sifted stream so
// that it matches the sender's with high probability.
type Reconciler interface {
	Reconcile(sender, receiver bitmap.Dense) (Reconciled, error)
}

// BlockParity compares the parity of fixed-size blocks and, where they differ,
// flips the last bit of the receiver's block. It repairs at most one error per
// block; blocks holding an even number of errors pass undetected, and an odd
// count of three or more may be "corrected" at the wrong position.
type BlockParity struct {
	// BlockSize defaults to DefaultBlockSize.
	BlockSize int
}

// Reconcile implements the Reconciler interface.
func (bp BlockParity) Reconcile(sender, receiver bitmap.Dense) (Reconciled, error) {
	if sender.Size() != receiver.Size() {
		return Reconciled{}, fmt.Errorf(
			"reconciling bitstrings of different lengths: %d != %d", sender.Size(), receiver.Size())
	}
	size := bp.BlockSize
	if size == 0 {
		size = DefaultBlockSize
	}
	if size < 0 {
		return Reconciled{}, fmt.Errorf("invalid block size %d", size)
	}
	var r Reconciled
	for i := 0; i < receiver.Size(); i += size {
		end := min(i+size, receiver.Size())
		aBlock, err := bitmap.Slice(sender, i, end)
		if err != nil {
			return Reconciled{}, err
		}
		bBlock, err := bitmap.Slice(receiver, i, end)
		if err != nil {
			return Reconciled{}, err
		}
		if bitmap.Parity(aBlock) != bitmap.Parity(bBlock) && bBlock.Size() > 0 {
			bBlock.Flip(bBlock.Size() - 1)
			r.Corrections++
		}
		r.Key.Append(bBlock)
	}
	return r, nil
}

// ParseReconciler returns the Reconciler named s, either "block-parity" or
// "winnow", with default settings.
func ParseReconciler(s string) (Reconciler, error) {
	switch s {
	case "block-parity":
		return BlockParity{BlockSize: DefaultBlockSize}, nil
	case "winnow":
		return Winnow{}, nil
	}
	return nil, fmt.Errorf("unknown reconciler %q", s)
}
