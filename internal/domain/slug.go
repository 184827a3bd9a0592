package domain

import (
	"crypto/rand"
	"fmt"
	"io"
)

// SlugLen is the fixed length of message identifiers.
const SlugLen = 8

// slugAlphabet is base62: 62^8 ≈ 218 trillion combinations.
const slugAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// maxUnbiasedByte is the largest multiple of len(slugAlphabet) that fits in a
// byte. Bytes at or above it are redrawn, so every character is equally
// likely.
const maxUnbiasedByte = 256 - 256%len(slugAlphabet)

// NewSlug draws a random 8-character base62 identifier. Uniqueness is not
// checked here; the store's create-if-absent write enforces it.
func NewSlug() (string, error) {
	return newSlugFrom(rand.Reader)
}

func newSlugFrom(r io.Reader) (string, error) {
	out := make([]byte, 0, SlugLen)
	var buf [1]byte
	for len(out) < SlugLen {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("draw slug: %w", err)
		}
		b := int(buf[0])
		if b >= maxUnbiasedByte {
			continue
		}
		out = append(out, slugAlphabet[b%len(slugAlphabet)])
	}
	return string(out), nil
}

// IsValidSlug is a pure format check: exactly 8 characters from [0-9A-Za-z].
func IsValidSlug(s string) bool {
	if len(s) != SlugLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return true
}
