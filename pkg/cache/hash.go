package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the first n hex digits of the SHA-256 of s, or all 64 when
// n is not in 1..64. Cache entries, credential files and synthetic versions
// of unversioned sources are named with it.
func Digest(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
