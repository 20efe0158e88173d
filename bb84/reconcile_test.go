package bb84

import (
	"testing"

	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/go-test/deep"
)

func TestBlockParity(t *testing.T) {
	tcs := []struct {
		name        string
		sender      string
		receiver    string
		want        string
		corrections int
	}{
		{"identical", "1011 0110", "1011 0110", "1011 0110", 0},
		{"last bit error", "1011 0110", "1010 0110", "1011 0110", 1},
		{"error in each block", "1011 0110", "1010 0111", "1011 0110", 2},
		{"early error moves", "1011", "0011", "0010", 1},
		{"even errors pass", "1011", "0111", "0111", 0},
		{"short trailing block", "1011 01", "1011 00", "1011 01", 1},
		{"empty", "", "", "", 0},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			r, err := BlockParity{}.Reconcile(mustDense(t, tc.sender), mustDense(t, tc.receiver))
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if want := mustDense(t, tc.want); !bitmap.Equal(r.Key, want) {
				t.Errorf("corrected key == %s, want %s", r.Key, want)
			}
			if r.Corrections != tc.corrections {
				t.Errorf("corrections == %d, want %d", r.Corrections, tc.corrections)
			}
		})
	}
}

func TestBlockParityRestoresParity(t *testing.T) {
	src := SeededSource(8)
	for i := 0; i < 200; i++ {
		sender := src.Bits(4)
		receiver := sender.Clone()
		// At most one difference per block.
		if src.Coin() {
			receiver.Flip(int(src.Bits(2).Data()[0]))
		}
		r, err := BlockParity{BlockSize: 4}.Reconcile(sender, receiver)
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if bitmap.Parity(r.Key) != bitmap.Parity(sender) {
			t.Fatalf("corrected block %s has different parity from sender %s", r.Key, sender)
		}
		if bitmap.Equal(receiver, sender) || receiver.Get(3) != sender.Get(3) {
			if !bitmap.Equal(r.Key, sender) {
				t.Fatalf("block %s with a zero or last-bit difference corrected to %s", sender, r.Key)
			}
		}
	}
}

func TestBlockParityIsCopyOfReceiver(t *testing.T) {
	src := SeededSource(9)
	sender, receiver := src.Bits(103), src.Bits(103)
	r, err := BlockParity{}.Reconcile(sender, receiver)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if r.Key.Size() != receiver.Size() {
		t.Fatalf("corrected key has %d bits, want %d", r.Key.Size(), receiver.Size())
	}
	diff := bitmap.XOr(r.Key, receiver)
	for i := 0; i < diff.Size(); i++ {
		if diff.Get(i) && i%DefaultBlockSize != DefaultBlockSize-1 && i != diff.Size()-1 {
			t.Errorf("bit %d changed, but it does not end a block", i)
		}
	}
	if got := bitmap.CountOnes(diff); got != r.Corrections {
		t.Errorf("%d bits changed, %d corrections reported", got, r.Corrections)
	}
}

func TestBlockParityRejects(t *testing.T) {
	if _, err := (BlockParity{}).Reconcile(mustDense(t, "101"), mustDense(t, "10")); err == nil {
		t.Errorf("Reconcile accepted streams of different lengths")
	}
	if _, err := (BlockParity{BlockSize: -1}).Reconcile(mustDense(t, "101"), mustDense(t, "101")); err == nil {
		t.Errorf("Reconcile accepted a negative block size")
	}
}

func TestParseReconciler(t *testing.T) {
	tcs := []struct {
		name string
		want Reconciler
		eErr bool
	}{
		{"block-parity", BlockParity{BlockSize: DefaultBlockSize}, false},
		{"winnow", Winnow{}, false},
		{"cascade", nil, true},
	}
	for _, tc := range tcs {
		got, err := ParseReconciler(tc.name)
		if tc.eErr != (err != nil) {
			t.Errorf("ParseReconciler(%q) error == %v", tc.name, err)
			continue
		}
		if diff := deep.Equal(got, tc.want); diff != nil {
			t.Errorf("ParseReconciler(%q): %v", tc.name, diff)
		}
	}
}
