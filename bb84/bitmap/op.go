package bitmap

import "fmt"

// And returns the bitwise AND of two bitmaps. The result is as long as the
// shorter of the two.
func And(a, b Dense) Dense {
	n := a.len
	if b.len < n {
		n = b.len
	}
	return combine(a, b, n, func(x, y byte) byte { return x & y })
}

// Or returns the bitwise OR of two bitmaps. The shorter operand is padded with
// implicit zeros.
func Or(a, b Dense) Dense {
	return combine(a, b, maxLen(a, b), func(x, y byte) byte { return x | y })
}

// XOr returns the bitwise XOR of two bitmaps. The shorter operand is padded
// with implicit zeros.
func XOr(a, b Dense) Dense {
	return combine(a, b, maxLen(a, b), func(x, y byte) byte { return x ^ y })
}

// XNor returns the bitwise XNOR (equality) of two bitmaps. The shorter operand
// is padded with implicit zeros.
func XNor(a, b Dense) Dense {
	return combine(a, b, maxLen(a, b), func(x, y byte) byte { return ^(x ^ y) })
}

// Not returns the bitwise negation of a bitmap.
func Not(d Dense) Dense {
	return combine(d, Dense{}, d.len, func(x, _ byte) byte { return ^x })
}

// Slice returns a copy of bits [start, end) of d.
func Slice(d Dense, start, end int) (Dense, error) {
	if end > d.len {
		return Dense{}, fmt.Errorf("slicing bitmap of len %d up to %d", d.len, end)
	}
	if start < 0 {
		return Dense{}, fmt.Errorf("slicing bitmap with negative start: %d", start)
	}
	if end < start {
		return Dense{}, fmt.Errorf("slicing bitmap to negative length: %d", end-start)
	}
	if start%byteSize == 0 {
		return NewDense(d.bits[start/byteSize:], end-start), nil
	}
	r := Dense{}
	for i := start; i < end; i++ {
		r.AppendBit(d.Get(i))
	}
	return r, nil
}

func combine(a, b Dense, n int, f func(x, y byte) byte) Dense {
	r := Dense{
		bits: make([]byte, BytesFor(n)),
		len:  n,
	}
	for i := range r.bits {
		r.bits[i] = f(a.byteAt(i), b.byteAt(i))
	}
	r.trim()
	return r
}

func maxLen(a, b Dense) int {
	if a.len > b.len {
		return a.len
	}
	return b.len
}
