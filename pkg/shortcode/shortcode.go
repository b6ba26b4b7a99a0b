// Package shortcode implements the human-friendly queue code grammar and
// the short-code → session directory with a redis write-through cache.
package shortcode

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the reduced Crockford-like set: no 0/1/I/O, so codes survive
// handwriting and shouting across a counter. 32 symbols keeps nanoid's
// rejection sampling unbiased.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length of every queue code.
const Length = 6

// MaxAttempts bounds collision re-rolls before creation gives up.
const MaxAttempts = 20

// New returns a fresh random code. Uniqueness is the caller's problem;
// insert-conflict retry is how codes are claimed.
func New() (string, error) {
	code, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("failed to generate short code: %w", err)
	}
	return code, nil
}

// Canonicalize uppercases a user-supplied code. Codes are case-insensitive
// in URLs.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether a canonicalized code matches the grammar.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
