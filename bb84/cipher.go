package bb84

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

// DecryptionFailed stands in for a decrypted message that is not valid UTF-8.
const DecryptionFailed = "<decryption failed>"

// A Convention selects how key material is stretched over a message. Every
// convention is an XOR, so encryption and decryption are the same operation.
type Convention int

const (
	// ByteRepeating tiles the sifted key over the message and XORs each key
	// bit, as the value 0 or 1, into one whole byte.
	ByteRepeating Convention = iota
	// BitPacked tiles the sifted key over the message's bits, most significant
	// bit first, and XORs bit by bit.
	BitPacked
	// SecretKeyRepeating tiles the ASCII hex digits of the secret key over the
	// message, byte by byte.
	SecretKeyRepeating
)

func (c Convention) String() string {
	switch c {
	case ByteRepeating:
		return "byte-repeating"
	case BitPacked:
		return "bit-packed"
	case SecretKeyRepeating:
		return "secret-key"
	}
	return fmt.Sprintf("Convention(%d)", int(c))
}

// ParseConvention is the inverse of Convention.String.
func ParseConvention(s string) (Convention, error) {
	for _, c := range []Convention{ByteRepeating, BitPacked, SecretKeyRepeating} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cipher convention %q", s)
}

// Apply XORs msg with key material under c. Bit conventions use key; the
// secret-key convention uses secret.
func (c Convention) Apply(msg []byte, key bitmap.Dense, secret SecretKey) ([]byte, error) {
	switch c {
	case ByteRepeating:
		return XORBytes(msg, key)
	case BitPacked:
		return XORBits(msg, key)
	case SecretKeyRepeating:
		return XORSecret(msg, secret)
	}
	return nil, fmt.Errorf("unknown cipher convention %d", int(c))
}

// XORBytes implements the ByteRepeating convention.
func XORBytes(msg []byte, key bitmap.Dense) ([]byte, error) {
	n := key.Size()
	if n == 0 {
		return nil, ErrInsufficientKeyMaterial
	}
	out := make([]byte, len(msg))
	for i, b := range msg {
		var k byte
		if key.Get(i % n) {
			k = 1
		}
		out[i] = b ^ k
	}
	return out, nil
}

// XORBits implements the BitPacked convention.
func XORBits(msg []byte, key bitmap.Dense) ([]byte, error) {
	n := key.Size()
	if n == 0 {
		return nil, ErrInsufficientKeyMaterial
	}
	out := make([]byte, len(msg))
	for i, b := range msg {
		var k byte
		for j := 0; j < 8; j++ {
			k <<= 1
			if key.Get((i*8 + j) % n) {
				k |= 1
			}
		}
		out[i] = b ^ k
	}
	return out, nil
}

// XORSecret implements the SecretKeyRepeating convention.
func XORSecret(msg []byte, secret SecretKey) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrInsufficientKeyMaterial
	}
	out := make([]byte, len(msg))
	for i, b := range msg {
		out[i] = b ^ secret[i%len(secret)]
	}
	return out, nil
}

// An Encryption is the outcome of encrypting a message with the sender's key
// and decrypting it with the receiver's.
type Encryption struct {
	Message       string
	CiphertextHex string
	Decrypted     string

	// SealedHex is Message sealed under the secret key (see Seal), with the
	// run's variant as additional data. Empty when there is no secret key.
	SealedHex string

	// Skipped explains why no encryption took place, if it did not.
	Skipped string
}

// keyShortfall explains why c cannot encrypt with the given key material, or
// returns "" if it can. The bit conventions need MinKeyBits sifted bits; the
// secret-key convention only needs a secret.
func keyShortfall(c Convention, sender bitmap.Dense, secret SecretKey) string {
	if c == SecretKeyRepeating {
		if len(secret) == 0 {
			return fmt.Sprintf("%v: no secret key", ErrInsufficientKeyMaterial)
		}
		return ""
	}
	if sender.Size() < MinKeyBits {
		return fmt.Sprintf("%v: %d sifted bits, need %d", ErrInsufficientKeyMaterial, sender.Size(), MinKeyBits)
	}
	return ""
}

// roundTrip encrypts message under the sender's key and decrypts it under the
// receiver's, then seals it under secret with v as additional data. Too little
// key material leaves the ciphertext fields empty.
func roundTrip(c Convention, v Variant, message string, sender, receiver bitmap.Dense, secret SecretKey) (Encryption, error) {
	enc := Encryption{Message: message}
	if enc.Skipped = keyShortfall(c, sender, secret); enc.Skipped != "" {
		return enc, nil
	}
	ct, err := c.Apply([]byte(message), sender, secret)
	if err != nil {
		return Encryption{}, err
	}
	pt, err := c.Apply(ct, receiver, secret)
	if err != nil {
		return Encryption{}, err
	}
	enc.CiphertextHex = hex.EncodeToString(ct)
	enc.Decrypted = decodeText(pt)
	if len(secret) > 0 {
		sealed, err := Seal(secret, []byte(message), []byte(v))
		if err != nil {
			return Encryption{}, fmt.Errorf("sealing message: %w", err)
		}
		enc.SealedHex = hex.EncodeToString(sealed)
	}
	return enc, nil
}

func decodeText(b []byte) string {
	if !utf8.Valid(b) {
		return DecryptionFailed
	}
	return string(b)
}
