package bb84

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/alan-christopher/qkd/bb84/bitmap"
)

const (
	// FullKeyHexLen is the secret key length, in hex digits, of the full
	// experiments: all of SHA-256.
	FullKeyHexLen = 64
	// ShortKeyHexLen is the secret key length of the lightweight experiment.
	ShortKeyHexLen = 16
)

// A SecretKey is the hex-encoded output of privacy amplification.
type SecretKey string

// Amplify compresses a reconciled key into a SecretKey by hashing its '0'/'1'
// rendering with SHA-256 and keeping the first hexLen hex digits. A
// non-positive hexLen keeps the whole digest.
func Amplify(key bitmap.Dense, hexLen int) SecretKey {
	sum := sha256.Sum256([]byte(key.String()))
	h := hex.EncodeToString(sum[:])
	if hexLen > 0 && hexLen < len(h) {
		h = h[:hexLen]
	}
	return SecretKey(h)
}
