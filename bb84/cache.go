package bb84

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// A KeyCache holds the most recent Result on behalf of a caller that serves
// follow-up encryption requests. The zero KeyCache is empty and ready to use,
// and is safe for concurrent use.
type KeyCache struct {
	last atomic.Pointer[Result]
}

// Last returns the cached Result, or nil.
func (c *KeyCache) Last() *Result {
	return c.last.Load()
}

// Swap atomically replaces the cached Result with r and returns the previous
// one.
func (c *KeyCache) Swap(r *Result) *Result {
	return c.last.Swap(r)
}

// EncryptWithExistingKey encrypts message with the key material of a previous
// run, without measuring anything. Runs whose Policy withheld encryption keep
// withholding it.
func EncryptWithExistingKey(prev *Result, message string) (Encryption, error) {
	if prev == nil {
		return Encryption{}, ErrNoExperiment
	}
	if message == "" {
		message = DefaultMessage
	}
	if prev.Withheld {
		return Encryption{Message: message, Skipped: prev.AbortReason}, nil
	}
	return roundTrip(prev.Convention, prev.Variant, message, prev.Sifted.Sender, prev.Sifted.Receiver, prev.SecretKey)
}

// OpenSealed recovers a message sealed by a previous run (see
// Encryption.SealedHex). The run's variant must match the one it was sealed
// under.
func OpenSealed(prev *Result, sealedHex string) (string, error) {
	if prev == nil {
		return "", ErrNoExperiment
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", fmt.Errorf("decoding sealed message: %w", err)
	}
	pt, err := Open(prev.SecretKey, sealed, []byte(prev.Variant))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
