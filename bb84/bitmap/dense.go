package bitmap

import "math/rand"

// A Dense is a bitmap where every bit is explicitly represented. Bit i lives in
// byte i/8 at position i%8. Bits past Size() in the final byte are always zero.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a copy of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added; if shorter, surplus bits are dropped. If bitLen is negative, then
// it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.trim()
	return r
}

// Get returns the i-th bit in this bitmap. Bits past the end read as zero.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return 0 < d.bits[i/byteSize]&(1<<(i%byteSize))
}

// Size returns the number of bits in this bitmap, excluding implicit trailing
// zeros.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes in this bitmap, excluding implicit
// trailing zeros.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits
}

// Clone returns a deep copy of d.
func (d Dense) Clone() Dense {
	return NewDense(d.bits, d.len)
}

// Set sets the i-th bit to v. i must be within [0, Size()).
func (d *Dense) Set(i int, v bool) {
	j, pos := i/byteSize, i%byteSize
	if v {
		d.bits[j] |= 1 << pos
	} else {
		d.bits[j] &= ^(1 << pos)
	}
}

// Shuffle randomly permutes the contents of d, using r as a source of
// randomness. Two bitmaps of equal size shuffled with identically seeded
// generators undergo the same permutation.
func (d *Dense) Shuffle(r *rand.Rand) {
	r.Shuffle(d.len, d.swap)
}

func (d *Dense) swap(i, j int) {
	a, b := d.Get(i), d.Get(j)
	if a == b {
		return
	}
	d.Flip(i)
	d.Flip(j)
}

// Flip inverts the i-th bit. i must be within [0, Size()).
func (d *Dense) Flip(i int) {
	j, pos := i/byteSize, i%byteSize
	d.bits[j] ^= 1 << pos
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len += 1
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	} else {
		d.bits[i] &= ^(1 << pos)
	}
}

// Append adds the contents of d2 to the end of d.
func (d *Dense) Append(d2 Dense) {
	if d.len%byteSize == 0 {
		d.bits = append(d.bits[:d.SizeBytes()], d2.bits[:d2.SizeBytes()]...)
		d.len += d2.len
		return
	}
	for i := 0; i < d2.len; i++ {
		d.AppendBit(d2.Get(i))
	}
}

// trim zeroes the unused high bits of the final byte.
func (d *Dense) trim() {
	off := d.len % byteSize
	if off == 0 || len(d.bits) == 0 {
		return
	}
	d.bits[len(d.bits)-1] &= byte(1<<off) - 1
}

func (d Dense) byteAt(i int) byte {
	if i >= len(d.bits) {
		return 0
	}
	return d.bits[i]
}
