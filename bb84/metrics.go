package bb84

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence is the confidence level of Stats.QBERUpper.
var DefaultConfidence = 0.95

// Stats packages together the security metrics of a protocol run.
type Stats struct {
	SiftedBits int
	Matches    int
	Errors     int

	// Fidelity is the fraction of sifted bits on which sender and receiver
	// agree, and Loss its complement. QBER is the error rate in percent, so
	// Loss == QBER/100. With nothing sifted, Fidelity is 0 by convention.
	Fidelity float64
	Loss     float64
	QBER     float64

	// QBERUpper is a one-sided Wilson upper bound on the true error fraction
	// (not percent) at the configured confidence. It is 1 when nothing was
	// sifted.
	QBERUpper float64

	// Corrections counts the bits flipped by reconciliation.
	Corrections int
}

// ComputeStats derives the security metrics of a sifted pair of streams.
// confidence must lie in (0, 1); zero selects DefaultConfidence.
func ComputeStats(s Sifted, confidence float64) Stats {
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	st := Stats{
		SiftedBits: s.Size(),
		Matches:    s.Matches,
		Errors:     s.Errors(),
		Loss:       1,
		QBER:       100,
		QBERUpper:  1,
	}
	if st.SiftedBits == 0 {
		return st
	}
	n := float64(st.SiftedBits)
	st.Fidelity = float64(st.Matches) / n
	st.Loss = 1 - st.Fidelity
	st.QBER = float64(st.Errors) / n * 100
	st.QBERUpper = wilsonUpper(float64(st.Errors)/n, n, distuv.UnitNormal.Quantile(confidence))
	return st
}

func wilsonUpper(p, n, z float64) float64 {
	z2 := z * z
	centre := p + z2/(2*n)
	spread := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n))
	return math.Min(1, (centre+spread)/(1+z2/n))
}

// A Metric names the statistic a Policy watches.
type Metric int

const (
	// MetricNone disables the policy.
	MetricNone Metric = iota
	// MetricLoss compares Stats.Loss, a fraction, against the threshold.
	MetricLoss
	// MetricQBER compares Stats.QBER, a percentage, against the threshold.
	MetricQBER
)

// A Policy decides whether a run's error rate betrays an eavesdropper.
type Policy struct {
	Metric    Metric
	Threshold float64

	// Withhold, when set, suppresses encryption entirely for runs that fail
	// the policy. Otherwise the run is only flagged as untrusted.
	Withhold bool
}

// LossPolicy flags runs whose loss exceeds threshold, but still encrypts.
func LossPolicy(threshold float64) Policy {
	return Policy{Metric: MetricLoss, Threshold: threshold}
}

// QBERPolicy withholds encryption from runs whose QBER, in percent, exceeds
// threshold.
func QBERPolicy(threshold float64) Policy {
	return Policy{Metric: MetricQBER, Threshold: threshold, Withhold: true}
}

// Check returns an error wrapping ErrSecurityAbort if s fails p.
func (p Policy) Check(s Stats) error {
	switch p.Metric {
	case MetricLoss:
		if s.Loss > p.Threshold {
			return fmt.Errorf("%w: loss %.3f exceeds %.3f", ErrSecurityAbort, s.Loss, p.Threshold)
		}
	case MetricQBER:
		if s.QBER > p.Threshold {
			return fmt.Errorf("%w: QBER %.1f%% exceeds %g%%", ErrSecurityAbort, s.QBER, p.Threshold)
		}
	}
	return nil
}

// abortReason renders a failed check the way results report it.
func (p Policy) abortReason(s Stats) string {
	switch p.Metric {
	case MetricLoss:
		return "Error too high! Key generation aborted."
	case MetricQBER:
		return fmt.Sprintf("QBER %.1f%% exceeds security threshold of %g%%; encryption withheld.", s.QBER, p.Threshold)
	}
	return ""
}
