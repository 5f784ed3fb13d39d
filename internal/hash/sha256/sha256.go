// Package sha256 derives stable object keys from target identities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements SHA-256 digests as lowercase hex.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	return h.Key(string(data)), nil
}

// Key returns the hex digest of s. Used where a filesystem/object safe name is
// needed for an arbitrary identity such as a URL.
func (h *Hasher) Key(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
