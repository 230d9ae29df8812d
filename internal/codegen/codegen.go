// Package codegen generates OTP codes from a configurable alphabet.
package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// DefaultAlphabet is the character set codes are drawn from when
	// none is configured.
	DefaultAlphabet = "0123456789"

	// DefaultLength is the number of characters per code when none is
	// configured.
	DefaultLength = 6
)

// Generator produces random codes of a fixed length from a fixed
// alphabet. It holds no state between calls.
type Generator struct {
	alphabet string
	length   int
}

// New returns a Generator for the given alphabet and length, falling
// back to numeric 6-character codes when either is unset.
func New(alphabet string, length int) (*Generator, error) {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length == 0 {
		length = DefaultLength
	}
	if length < 0 {
		return nil, fmt.Errorf("invalid code length %d", length)
	}

	return &Generator{
		alphabet: alphabet,
		length:   length,
	}, nil
}

// Generate generates a cryptographically random code. Each character is
// drawn uniformly from the alphabet.
func (g *Generator) Generate() (string, error) {
	var (
		out = make([]byte, g.length)
		max = big.NewInt(int64(len(g.alphabet)))
	)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = g.alphabet[n.Int64()]
	}

	return string(out), nil
}

// Len returns the configured code length.
func (g *Generator) Len() int {
	return g.length
}
