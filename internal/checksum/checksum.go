// Package checksum computes the content digests used for store files,
// index fingerprints and backup payloads.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Match reports whether data hashes to want.
func Match(data []byte, want string) bool {
	got := Sum(data)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
