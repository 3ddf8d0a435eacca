package room

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

const (
	// CodeLength is the number of characters in a room code
	CodeLength = 5

	// CodeAlphabet lists the characters a room code may contain
	CodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var codePattern = regexp.MustCompile(`^[a-z0-9]{5}$`)

// CodeGenerator produces candidate room codes. The registry checks
// uniqueness, so a generator only has to produce well-formed codes.
type CodeGenerator func() (string, error)

// ValidCode reports whether s is a well-formed room code
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// RandomCode returns a uniformly distributed code using crypto/rand
func RandomCode() (string, error) {
	// Largest multiple of the alphabet size that fits in a byte; bytes at or
	// above it are rejected to keep the distribution uniform.
	const limit = 256 - 256%len(CodeAlphabet)

	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}

	return string(code), nil
}
