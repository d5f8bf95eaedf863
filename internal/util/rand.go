package util

import (
	"crypto/rand"
	"fmt"
)

// tokenAlphabet drops 0/O, 1/I and U/V so a generated value read over the
// phone or retyped by hand cannot be mistaken for a lookalike.
const tokenAlphabet = "23456789ABCDEFGHJKLMNPQRSTVWXYZ"

// RandomChars returns n characters drawn uniformly from tokenAlphabet.
func RandomChars(n int) (string, error) {
	// Bytes at or above the largest multiple of len(tokenAlphabet) are
	// discarded so every character stays equally likely.
	limit := 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// WipeBytes best-effort zeroes the slice in place.
func WipeBytes(b []byte) {
	clear(b)
}
