// ABOUTME: Digest type for MD5 content fingerprints of scanned files
// ABOUTME: Provides parsing, validation, and key generation for BadgerDB storage

package types

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestLength is the length of a hex-encoded MD5 digest.
const DigestLength = md5.Size * 2

// EmptyDigest is the MD5 digest of zero bytes of input.
const EmptyDigest Digest = "d41d8cd98f00b204e9800998ecf8427e"

// Digest is a lowercase hex-encoded 128-bit MD5 digest.
type Digest string

// ParseDigest parses a hex digest string.
// It normalizes the digest to lowercase and trims whitespace.
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		return "", fmt.Errorf("empty digest")
	}

	// Normalize to lowercase.
	s = strings.ToLower(s)

	if len(s) != DigestLength {
		return "", fmt.Errorf("invalid digest length %d: must be %d", len(s), DigestLength)
	}

	for _, c := range s {
		if !isHexChar(c) {
			return "", fmt.Errorf("invalid hex characters in digest")
		}
	}

	return Digest(s), nil
}

// MustParseDigest is like ParseDigest but panics on error.
// Intended for constants and tests.
func MustParseDigest(s string) Digest {
	d, err := ParseDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DigestFromSum converts a raw MD5 sum into a Digest.
func DigestFromSum(sum []byte) Digest {
	return Digest(hex.EncodeToString(sum))
}

// String returns the hex form of the digest.
func (d Digest) String() string {
	return string(d)
}

// IsValid returns true if the digest has the correct length and alphabet.
func (d Digest) IsValid() bool {
	if len(d) != DigestLength {
		return false
	}
	for _, c := range string(d) {
		if !isHexChar(c) || (c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// Key returns the storage key suffix for this digest (e.g., "md5:abc123").
func (d Digest) Key() string {
	return "md5:" + string(d)
}

// isHexChar returns true if the rune is a valid hexadecimal character.
func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
