// Package fingerprint computes the content identity used as the join key
// across state, cache and storage.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Fingerprint is the lowercase hex SHA-256 digest of a byte buffer.
type Fingerprint string

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Of returns the fingerprint of b. A nil or empty slice yields the digest
// of zero bytes.
func Of(b []byte) Fingerprint {
	sum := sha256.Sum256(b)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FromReader streams r through the hash without buffering it.
func FromReader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// FromFile fingerprints the file at path.
func FromFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return FromReader(f)
}

func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 8 characters for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return string(f)
	}
	return string(f[:8])
}

// Valid reports whether f has the shape of a SHA-256 hex digest.
func (f Fingerprint) Valid() bool {
	if len(f) != Size {
		return false
	}
	for _, c := range f {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
