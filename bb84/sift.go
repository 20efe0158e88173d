package bb84

import (
	"fmt"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// A Sifted holds the sender's and receiver's bits at the positions where their
// bases agreed.
type Sifted struct {
	Sender   bitmap.Dense
	Receiver bitmap.Dense

	// Positions lists the raw indices that survived sifting.
	Positions []int

	// Matches counts sifted positions where sender and receiver agree.
	Matches int
}

// Size returns the length of the sifted streams.
func (s Sifted) Size() int {
	return s.Sender.Size()
}

// Errors counts sifted positions where sender and receiver disagree.
func (s Sifted) Errors() int {
	return s.Size() - s.Matches
}

// Sift discards every position where the sender's and receiver's bases
// differ.
func Sift(sentBits, sentBases, receivedBits, receivedBases bitmap.Dense) (Sifted, error) {
	n := sentBits.Size()
	for _, d := range []bitmap.Dense{sentBases, receivedBits, receivedBases} {
		if d.Size() != n {
			return Sifted{}, fmt.Errorf("sifting streams of different lengths: %d != %d", d.Size(), n)
		}
	}
	siftMask := bitmap.XNor(sentBases, receivedBases)
	s := Sifted{
		Sender:    bitmap.Select(sentBits, siftMask),
		Receiver:  bitmap.Select(receivedBits, siftMask),
		Positions: bitmap.Positions(siftMask),
	}
	s.Matches = s.Size() - bitmap.CountOnes(bitmap.XOr(s.Sender, s.Receiver))
	return s, nil
}
