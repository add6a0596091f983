package source

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Integrity is an expected digest parsed from a locator fragment.
type Integrity struct {
	Algorithm string // sha1, sha256 or sha512
	Digest    []byte
	sri       bool
}

// ParseIntegrity parses a fragment as either a hex digest (length selects
// the algorithm) or an SRI string "<algorithm>-<base64>". It returns false
// when the fragment is not an integrity value, e.g. a git ref.
func ParseIntegrity(fragment string) (Integrity, bool, error) {
	if algo, b64, ok := strings.Cut(fragment, "-"); ok && isAlgorithm(algo) {
		digest, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return Integrity{}, false, fmt.Errorf("invalid %s integrity: %w", algo, err)
		}
		if len(digest) != newHash(algo).Size() {
			return Integrity{}, false, fmt.Errorf("invalid %s integrity: wrong digest length", algo)
		}
		return Integrity{Algorithm: algo, Digest: digest, sri: true}, true, nil
	}

	var algo string
	switch len(fragment) {
	case 40:
		algo = "sha1"
	case 64:
		algo = "sha256"
	case 128:
		algo = "sha512"
	default:
		return Integrity{}, false, nil
	}
	digest, err := hex.DecodeString(fragment)
	if err != nil {
		return Integrity{}, false, nil
	}
	return Integrity{Algorithm: algo, Digest: digest}, true, nil
}

func isAlgorithm(s string) bool {
	return s == "sha1" || s == "sha256" || s == "sha512"
}

func newHash(algo string) hash.Hash {
	switch algo {
	case "sha1":
		return sha1.New()
	case "sha256":
		return sha256.New()
	}
	return sha512.New()
}

// New returns a hash for the integrity algorithm.
func (i Integrity) New() hash.Hash { return newHash(i.Algorithm) }

// Format renders a digest in the same notation as i.
func (i Integrity) Format(digest []byte) string {
	if i.sri {
		return i.Algorithm + "-" + base64.StdEncoding.EncodeToString(digest)
	}
	return hex.EncodeToString(digest)
}

// String renders the expected digest.
func (i Integrity) String() string { return i.Format(i.Digest) }
