package wire

import (
	"fmt"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// A toeplitz hashes frames with an m-row matrix over F_2 whose diagonals are
// constant. Its width is fixed per call by the frame being hashed, so one set
// of diagonals serves every frame up to the longest it can cover. Toeplitz
// matrices drawn from a secret are a universal hash family, which is what the
// frame MAC relies on.
type toeplitz struct {
	// The diagonal constants, starting from the bottom left. Row r of an
	// n-column matrix is diags[m-1-r : m-1-r+n].
	diags bitmap.Dense
	m     int
}

// maxBits returns the widest input t can hash.
func (t toeplitz) maxBits() int {
	return t.diags.Size() - t.m + 1
}

// hash returns the m-bit product of t, sized to frame, and frame's bits.
func (t toeplitz) hash(frame []byte) (bitmap.Dense, error) {
	return t.mul(bitmap.NewDense(frame, -1))
}

func (t toeplitz) mul(vec bitmap.Dense) (bitmap.Dense, error) {
	n := vec.Size()
	if n > t.maxBits() {
		return bitmap.Dense{}, fmt.Errorf("hashing %d bits with diagonals covering %d", n, t.maxBits())
	}
	out := bitmap.NewDense(nil, t.m)
	for r := 0; r < t.m; r++ {
		start := t.m - 1 - r
		row, err := bitmap.Slice(t.diags, start, start+n)
		if err != nil {
			return bitmap.Dense{}, err
		}
		out.Set(r, bitmap.Parity(bitmap.And(row, vec)))
	}
	return out, nil
}
