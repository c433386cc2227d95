// Package id generates the random identifiers the server hands out:
// SSE client ids, request ids, and device tokens.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphanumeric is the alphabet used for device tokens. Tokens end up in
// TOML files and shell history, so the URL-safe symbols are left out.
const Alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate creates a prefixed NanoID, e.g. "client-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Secret returns prefix followed by size random characters from Alphanumeric.
func Secret(prefix string, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("secret size must be positive, got %d", size)
	}
	s, err := gonanoid.Generate(Alphanumeric, size)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return prefix + s, nil
}
