// Package auth verifies the bearer tokens devices present to the sync API.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// Sensible defaults for a self-hosted server; tokens carry 190 bits of
	// entropy so the hash only has to make a leaked config file useless.
	argon2Memory      = 64 * 1024
	argon2Iterations  = 3
	argon2Parallelism = 4
	argon2SaltLength  = 16
	argon2KeyLength   = 32

	// Bounds the work an unauthenticated caller can cause.
	maxTokenLength = 1024
)

// HashToken returns the argon2id hash of token in PHC string format.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token cannot be empty")
	}
	if len(token) > maxTokenLength {
		return "", errors.New("token exceeds maximum length")
	}

	salt := make([]byte, argon2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, argon2Iterations, argon2Memory, argon2Parallelism, argon2KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Iterations,
		argon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// IsHashed reports whether stored looks like a PHC argon2 hash rather than
// a legacy plain-text token.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$argon2")
}

// VerifyToken checks token against a stored config entry. Entries that are
// not argon2 hashes are legacy plain-text tokens and are compared directly.
func VerifyToken(stored, token string) bool {
	if token == "" || len(token) > maxTokenLength {
		return false
	}

	if !IsHashed(stored) {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1
	}

	salt, hash, params, err := decodeHash(stored)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(token), salt, params.iterations, params.memory, params.parallelism, params.keyLength)
	return subtle.ConstantTimeCompare(hash, candidate) == 1
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	keyLength   uint32
}

// decodeHash extracts salt, hash and parameters from a PHC string.
func decodeHash(encodedHash string) (salt, hash []byte, params *argon2Params, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, nil, errors.New("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("incompatible version: %d", version)
	}

	params = &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.iterations, &params.parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid salt encoding: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid hash encoding: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, nil, errors.New("empty hash")
	}

	//nolint:gosec // hash length is bounded by the encoded string
	params.keyLength = uint32(len(hash))

	return salt, hash, params, nil
}
