package bb84

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/charmbracelet/log"
)

// A Variant names one of the canned experiments.
type Variant string

const (
	// VariantNoEavesdropper runs BB84 over an unobserved channel.
	VariantNoEavesdropper Variant = "no-eve"
	// VariantInterceptResend places an intercept-resend attacker on every
	// qubit and flags runs whose loss exceeds 15%.
	VariantInterceptResend Variant = "intercept-resend"
	// VariantPassive places a partial attacker on even positions and withholds
	// encryption when QBER exceeds 11%.
	VariantPassive Variant = "passive-eve"
	// VariantSimple is a ten-qubit run with a short secret key, used for quick
	// checks.
	VariantSimple Variant = "simple"
)

// Variants lists every canned experiment.
var Variants = []Variant{VariantNoEavesdropper, VariantInterceptResend, VariantPassive, VariantSimple}

// ParseVariant looks up a Variant by name.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown experiment variant %q", s)
}

// Opts returns the canned options for v. The caller must still supply a
// Channel and a Source.
func (v Variant) Opts() ExperimentOpts {
	opts := ExperimentOpts{
		Variant:    v,
		Qubits:     DefaultQubits,
		KeyHexLen:  FullKeyHexLen,
		Policy:     LossPolicy(0.15),
		Convention: ByteRepeating,
	}
	switch v {
	case VariantInterceptResend:
		opts.Eavesdropper = InterceptResend{}
	case VariantPassive:
		opts.Eavesdropper = PassiveSample{}
		opts.Policy = QBERPolicy(11)
		opts.Convention = BitPacked
	case VariantSimple:
		opts.Qubits = 10
		opts.KeyHexLen = ShortKeyHexLen
		opts.Convention = SecretKeyRepeating
	}
	return opts
}

// An ExperimentOpts packages together the arguments necessary to construct a
// new Experiment. Channel and Source have no reasonable defaults; leaving them
// nil makes NewExperiment return an error.
type ExperimentOpts struct {
	// Variant labels results. It does not alter behaviour; see Variant.Opts.
	Variant Variant

	// Channel measures qubits. Must be non-nil.
	Channel photon.Channel

	// Source provides the run's randomness. Must be non-nil, and must not be
	// shared with concurrently running experiments.
	Source *Source

	// Eavesdropper intercepts qubits in flight. Defaults to NoEavesdropper.
	Eavesdropper Eavesdropper

	// Qubits is the number of qubits prepared per run. Defaults to
	// DefaultQubits.
	Qubits int

	// Reconciler performs error correction. Defaults to BlockParity with
	// DefaultBlockSize.
	Reconciler Reconciler

	// KeyHexLen is the length of the secret key in hex digits. Defaults to
	// FullKeyHexLen.
	KeyHexLen int

	// Policy decides whether a run is trusted. The zero Policy trusts all
	// runs.
	Policy Policy

	// Convention selects the message cipher.
	Convention Convention

	// Confidence is the confidence level of Stats.QBERUpper. Defaults to
	// DefaultConfidence.
	Confidence float64

	// Logger receives debug output for each protocol stage. Defaults to
	// discarding it.
	Logger *log.Logger
}

// An Experiment runs the BB84 pipeline: prepare, transmit, sift, reconcile,
// amplify, assess and finally encrypt. An Experiment is not safe for
// concurrent use.
type Experiment struct {
	variant    Variant
	channel    photon.Channel
	src        *Source
	eve        Eavesdropper
	qubits     int
	reconciler Reconciler
	keyHexLen  int
	policy     Policy
	convention Convention
	confidence float64
	log        *log.Logger

	bitsFunc    func(n int) bitmap.Dense
	basesFunc   func(n int) bitmap.Dense
	measureFunc func(n int) bitmap.Dense
}

// NewExperiment returns a new Experiment, configured in accordance with opts,
// or an error if the options are nonsensical.
func NewExperiment(opts ExperimentOpts) (*Experiment, error) {
	if opts.Channel == nil {
		return nil, errors.New("must provide Channel")
	}
	if opts.Source == nil {
		return nil, errors.New("must provide Source")
	}
	if opts.Qubits < 0 {
		return nil, fmt.Errorf("qubit count must not be negative, got %d", opts.Qubits)
	}
	if opts.Confidence < 0 || opts.Confidence >= 1 {
		return nil, fmt.Errorf("confidence must lie in (0, 1), got %v", opts.Confidence)
	}
	e := &Experiment{
		variant:    opts.Variant,
		channel:    opts.Channel,
		src:        opts.Source,
		eve:        opts.Eavesdropper,
		qubits:     opts.Qubits,
		reconciler: opts.Reconciler,
		keyHexLen:  opts.KeyHexLen,
		policy:     opts.Policy,
		convention: opts.Convention,
		confidence: opts.Confidence,
		log:        opts.Logger,
	}
	if e.eve == nil {
		e.eve = NoEavesdropper{}
	}
	if e.qubits == 0 {
		e.qubits = DefaultQubits
	}
	if e.reconciler == nil {
		e.reconciler = BlockParity{BlockSize: DefaultBlockSize}
	}
	if e.keyHexLen == 0 {
		e.keyHexLen = FullKeyHexLen
	}
	if e.confidence == 0 {
		e.confidence = DefaultConfidence
	}
	if e.log == nil {
		e.log = log.New(io.Discard)
	}
	return e, nil
}

// Run performs one round of BB84 and encrypts message with the result. An
// empty message is replaced by DefaultMessage.
//
// Channel failures abort the run and are returned. A run whose error rate
// fails the Policy still completes; its Result carries an AbortReason.
func (e *Experiment) Run(ctx context.Context, message string) (*Result, error) {
	if message == "" {
		message = DefaultMessage
	}
	n := e.qubits
	bits := e.draw(e.bitsFunc, n)
	bases := e.draw(e.basesFunc, n)
	measure := e.draw(e.measureFunc, n)
	e.log.Debug("prepared qubits", "variant", e.variant, "qubits", n)

	tx, err := e.eve.Transmit(ctx, e.channel, photon.Batch{Bits: bits, Bases: bases, Measure: measure}, e.src)
	if err != nil {
		return nil, fmt.Errorf("transmitting qubits: %w", err)
	}
	e.log.Debug("transmitted qubits", "intercepted", bitmap.CountOnes(tx.Intercepted), "channelCalls", len(tx.Counts))

	sifted, err := Sift(bits, bases, tx.Received, measure)
	if err != nil {
		return nil, err
	}
	e.log.Debug("sifted key", "bits", sifted.Size(), "matches", sifted.Matches)

	rec, err := e.reconciler.Reconcile(sifted.Sender, sifted.Receiver)
	if err != nil {
		return nil, fmt.Errorf("reconciling key: %w", err)
	}
	e.log.Debug("reconciled key", "corrections", rec.Corrections)

	secret := Amplify(rec.Key, e.keyHexLen)
	stats := ComputeStats(sifted, e.confidence)
	stats.Corrections = rec.Corrections
	e.log.Debug("computed metrics", "fidelity", stats.Fidelity, "qber", stats.QBER, "qberUpper", stats.QBERUpper)

	res := &Result{
		Variant:       e.variant,
		SenderBits:    bits,
		SenderBases:   bases,
		ReceiverBases: measure,
		ReceiverBits:  tx.Received,
		Intercepted:   tx.Intercepted,
		EveBases:      tx.EveBases,
		EveBits:       tx.EveBits,
		Sifted:        sifted,
		CorrectedKey:  rec.Key,
		SecretKey:     secret,
		Stats:         stats,
		Convention:    e.convention,
		Counts:        tx.Counts,
	}
	if err := e.policy.Check(stats); err != nil {
		res.AbortReason = e.policy.abortReason(stats)
		res.Withheld = e.policy.Withhold
		e.log.Warn("run failed security check", "variant", e.variant, "err", err)
	}

	if res.Withheld {
		res.Encryption = Encryption{Message: message, Skipped: res.AbortReason}
		return res, nil
	}
	res.Encryption, err = roundTrip(e.convention, e.variant, message, sifted.Sender, sifted.Receiver, secret)
	if err != nil {
		return nil, fmt.Errorf("encrypting message: %w", err)
	}
	if res.Encryption.Skipped != "" {
		e.log.Debug("skipped encryption", "reason", res.Encryption.Skipped)
	}
	return res, nil
}

func (e *Experiment) draw(f func(int) bitmap.Dense, n int) bitmap.Dense {
	if f != nil {
		return f(n)
	}
	return e.src.Bits(n)
}
