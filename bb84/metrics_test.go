package bb84

import (
	"errors"
	"math"
	"testing"

	"github.com/go-test/deep"
)

func siftedFrom(t *testing.T, sender, receiver string) Sifted {
	snd, rcv := mustDense(t, sender), mustDense(t, receiver)
	s, err := Sift(snd, zeros(snd.Size()), rcv, zeros(rcv.Size()))
	if err != nil {
		t.Fatalf("bugged test setup: %v", err)
	}
	return s
}

func TestComputeStats(t *testing.T) {
	s := siftedFrom(t, "1011 0110", "1011 0010")
	got := ComputeStats(s, 0)
	got.QBERUpper = 0
	want := Stats{
		SiftedBits: 8,
		Matches:    7,
		Errors:     1,
		Fidelity:   0.875,
		Loss:       0.125,
		QBER:       12.5,
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	got := ComputeStats(Sifted{}, 0)
	want := Stats{Loss: 1, QBER: 100, QBERUpper: 1}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestStatsInvariants(t *testing.T) {
	src := SeededSource(21)
	for i := 1; i < 100; i++ {
		sender, receiver := src.Bits(i), src.Bits(i)
		s, err := Sift(sender, zeros(i), receiver, zeros(i))
		if err != nil {
			t.Fatalf("Sift: %v", err)
		}
		st := ComputeStats(s, 0)
		if st.Fidelity < 0 || st.Fidelity > 1 {
			t.Fatalf("fidelity %v outside [0, 1]", st.Fidelity)
		}
		if math.Abs(st.Loss-(1-st.Fidelity)) > 1e-12 {
			t.Fatalf("loss %v != 1 - fidelity %v", st.Loss, st.Fidelity)
		}
		if math.Abs(st.Loss-st.QBER/100) > 1e-12 {
			t.Fatalf("loss %v != qber/100 %v", st.Loss, st.QBER/100)
		}
		if st.QBERUpper < st.QBER/100 || st.QBERUpper > 1 {
			t.Fatalf("upper bound %v not within [%v, 1]", st.QBERUpper, st.QBER/100)
		}
	}
}

func TestQBERUpperShrinks(t *testing.T) {
	// Same observed error rate, more samples: a tighter bound.
	small := ComputeStats(Sifted{Sender: zeros(20), Receiver: zeros(20), Matches: 18}, 0.95)
	large := ComputeStats(Sifted{Sender: zeros(2000), Receiver: zeros(2000), Matches: 1800}, 0.95)
	if !(large.QBERUpper < small.QBERUpper) {
		t.Errorf("bound over 2000 bits (%v) not tighter than over 20 (%v)", large.QBERUpper, small.QBERUpper)
	}
	if large.QBERUpper < 0.1 || large.QBERUpper > 0.12 {
		t.Errorf("bound over 2000 bits == %v, want just above 0.1", large.QBERUpper)
	}
}

func TestPolicy(t *testing.T) {
	tcs := []struct {
		name   string
		policy Policy
		stats  Stats
		eAbort bool
	}{
		{"none", Policy{}, Stats{Loss: 0.9, QBER: 90}, false},
		{"loss under", LossPolicy(0.15), Stats{Loss: 0.15, QBER: 15}, false},
		{"loss over", LossPolicy(0.15), Stats{Loss: 0.25, QBER: 25}, true},
		{"qber under", QBERPolicy(11), Stats{Loss: 0.11, QBER: 11}, false},
		{"qber over", QBERPolicy(11), Stats{Loss: 0.12, QBER: 12}, true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Check(tc.stats)
			if tc.eAbort != errors.Is(err, ErrSecurityAbort) {
				t.Errorf("Check == %v, want abort: %v", err, tc.eAbort)
			}
			if tc.eAbort && tc.policy.abortReason(tc.stats) == "" {
				t.Errorf("failed check has no abort reason")
			}
		})
	}
}
