// Package bb84 runs the BB84 quantum key distribution protocol end to end:
// random preparation, transmission through a photon.Channel (optionally past
// an eavesdropper), sifting, block-parity error correction, SHA-256 privacy
// amplification, security metrics, and encryption of a short message with the
// resulting key material.
//
// The error correction and privacy amplification steps are deliberately simple
// and offer none of the guarantees of production QKD.
package bb84

import "errors"

var (
	// ErrInsufficientKeyMaterial reports a sifted key too short to encrypt
	// with. Runs record it in Encryption.Skipped rather than failing.
	ErrInsufficientKeyMaterial = errors.New("bb84: insufficient key material")

	// ErrSecurityAbort reports an error rate above the run's Policy threshold.
	ErrSecurityAbort = errors.New("bb84: security threshold exceeded")

	// ErrNoExperiment is returned when encrypting with an existing key before
	// any experiment has produced one.
	ErrNoExperiment = errors.New("bb84: no experiment has been run")
)

var (
	DefaultQubits  = 20
	DefaultMessage = "QKD demo"
)

// MinKeyBits is the shortest sifted key a message is encrypted with.
const MinKeyBits = 8
