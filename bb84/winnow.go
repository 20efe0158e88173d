package bb84

import (
	"fmt"
	"math/bits"
	"math/rand"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// DefaultWinnowIters is the pass schedule Winnow uses when none is given.
var DefaultWinnowIters = []int{3, 3, 3, 4, 6, 7, 7, 7}

// Winnow implements the Reconciler interface via the Winnow algorithm, as
// described in https://arxiv.org/abs/quant-ph/0203096.
//
// Each pass permutes both keys identically, splits them into blocks of 2^h
// bits and, for blocks whose total parities differ, corrects the receiver's
// block using the difference of the two Hamming syndromes. Every disclosed
// parity costs one key bit, so the reconciled key is a shorter permutation of
// the sifted one. Bits that do not fill a whole block are dropped.
type Winnow struct {
	// Iters lists the number of Hamming parity bits, h, of each pass. Passes
	// whose blocks are longer than the remaining key are skipped. Defaults to
	// DefaultWinnowIters.
	Iters []int

	// Seed drives the permutations. Both parties must agree on it.
	Seed int64
}

// Reconcile implements the Reconciler interface.
func (w Winnow) Reconcile(sender, receiver bitmap.Dense) (Reconciled, error) {
	_, y, fixes, err := w.reconcile(sender, receiver)
	if err != nil {
		return Reconciled{}, err
	}
	return Reconciled{Key: y, Corrections: fixes}, nil
}

// reconcile returns both parties' winnowed keys.
func (w Winnow) reconcile(x, y bitmap.Dense) (bitmap.Dense, bitmap.Dense, int, error) {
	if x.Size() != y.Size() {
		return bitmap.Empty(), bitmap.Empty(), 0, fmt.Errorf(
			"reconciling bitstrings of different lengths: %d != %d", x.Size(), y.Size())
	}
	iters := w.Iters
	if iters == nil {
		iters = DefaultWinnowIters
	}
	r := rand.New(rand.NewSource(w.Seed))
	x, y = x.Clone(), y.Clone()
	fixes := 0
	for _, hBits := range iters {
		if hBits < 1 {
			return bitmap.Empty(), bitmap.Empty(), 0, fmt.Errorf("invalid winnow pass with %d parity bits", hBits)
		}
		if x.Size() < 1<<hBits {
			continue
		}
		var (
			n   int
			err error
		)
		x, y, n, err = winnow(x, y, hBits, r.Int63())
		if err != nil {
			return bitmap.Empty(), bitmap.Empty(), 0, err
		}
		fixes += n
	}
	return x, y, fixes, nil
}

func winnow(x, y bitmap.Dense, hBits int, seed int64) (bitmap.Dense, bitmap.Dense, int, error) {
	x.Shuffle(rand.New(rand.NewSource(seed)))
	y.Shuffle(rand.New(rand.NewSource(seed)))
	whole := x.Size() - x.Size()%(1<<hBits)
	x, err := bitmap.Slice(x, 0, whole)
	if err != nil {
		return bitmap.Empty(), bitmap.Empty(), 0, err
	}
	if y, err = bitmap.Slice(y, 0, whole); err != nil {
		return bitmap.Empty(), bitmap.Empty(), 0, err
	}

	xSyn, err := getSyndromes(x, hBits)
	if err != nil {
		return bitmap.Empty(), bitmap.Empty(), 0, err
	}
	ySyn, err := getSyndromes(y, hBits)
	if err != nil {
		return bitmap.Empty(), bitmap.Empty(), 0, err
	}
	todo := bitmap.Empty()
	var synSums []bitmap.Dense
	for i := range xSyn {
		differs := xSyn[i].Get(hBits) != ySyn[i].Get(hBits)
		todo.AppendBit(differs)
		if differs {
			synSums = append(synSums, bitmap.XOr(xSyn[i], ySyn[i]))
		}
	}
	applySyndromes(&y, synSums, todo, hBits)
	return maintainPrivacy(x, todo, hBits), maintainPrivacy(y, todo, hBits), len(synSums), nil
}

// applySyndromes flips, in every block marked in todo, the bit its syndrome
// difference points at.
func applySyndromes(x *bitmap.Dense, synSums []bitmap.Dense, todo bitmap.Dense, hBits int) {
	n := 1 << hBits
	for i, k := 0, -1; i < todo.Size(); i++ {
		if !todo.Get(i) {
			continue
		}
		k++
		syn := synSums[k]
		pos := 0
		for j := 0; j < hBits; j++ {
			if syn.Get(j) {
				pos |= 1 << j
			}
		}
		pos-- // cardinal/ordinal correction
		if pos < 0 {
			pos = n - 1 // total parity flip
		}
		x.Flip(i*n + pos)
	}
}

// maintainPrivacy discards one bit per disclosed parity: the last bit of every
// block whose total parity alone was announced, and the Hamming parity
// positions of every block whose full syndrome was.
func maintainPrivacy(x bitmap.Dense, todo bitmap.Dense, hBits int) bitmap.Dense {
	keep := bitmap.Empty()
	n := 1 << hBits
	for i := 0; i < todo.Size(); i++ {
		if !todo.Get(i) {
			for j := 0; j < n-1; j++ {
				keep.AppendBit(true)
			}
			keep.AppendBit(false)
			continue
		}

		for j := 0; j < n; j++ {
			keep.AppendBit(bits.OnesCount(uint(j+1)) != 1)
		}
	}
	return bitmap.Select(x, keep)
}

func getSyndromes(x bitmap.Dense, hBits int) ([]bitmap.Dense, error) {
	var r []bitmap.Dense
	bSize := 1 << hBits
	for i := 0; i+bSize <= x.Size(); i += bSize {
		block, err := bitmap.Slice(x, i, i+bSize)
		if err != nil {
			return nil, err
		}
		syndrome, err := secded(block, hBits)
		if err != nil {
			return nil, err
		}
		r = append(r, syndrome)
	}
	return r, nil
}

func secded(block bitmap.Dense, hBits int) (bitmap.Dense, error) {
	if block.Size() != 1<<hBits {
		return bitmap.Empty(), fmt.Errorf(
			"hamming SECDED with %d parity bits needs block of %d, got %d", hBits, 1<<hBits, block.Size())
	}
	r := bitmap.Empty()

	// The p-th hamming parity bit checks the parity of bits in strides of 2^p. E.g.
	// the 0th bit checks positions {0, 2, 4, ...}, the 1st checks
	// {1,2, 5,6, ...}, the 2nd {3,4,5,6, 11,12,13,14, ...}.
	for p := 0; p < hBits; p++ {
		stride := 1 << p
		parity := false
		for i := stride - 1; i < block.Size(); i += 2 * stride {
			for j := i; j < i+stride && j < block.Size(); j++ {
				parity = (block.Get(j) != parity)
			}
		}
		r.AppendBit(parity)
	}

	// Finish by inserting a total parity bit.
	r.AppendBit(bitmap.Parity(block))

	return r, nil
}
