package bb84

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrCiphertextTooShort is returned by Open for input shorter than a nonce
	// plus a tag.
	ErrCiphertextTooShort = errors.New("bb84: sealed message too short")

	// ErrDecryptionFailed is returned by Open when the message does not
	// authenticate under the given secret and additional data.
	ErrDecryptionFailed = errors.New("bb84: decryption failed")
)

const sealInfo = "bb84-seal-v1"

// Seal encrypts and authenticates plaintext under a key derived from secret
// with HKDF-SHA256, using ChaCha20-Poly1305. The result is the 12-byte nonce
// followed by the ciphertext and its 16-byte tag.
func Seal(secret SecretKey, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := sealer(secret)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal.
func Open(secret SecretKey, sealed, additionalData []byte) ([]byte, error) {
	aead, err := sealer(secret)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func sealer(secret SecretKey) (cipher.AEAD, error) {
	if len(secret) == 0 {
		return nil, ErrInsufficientKeyMaterial
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo)), key); err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}
