package auth

import (
	"crypto/sha256"
	"sync"

	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/id"
)

// TokenPrefix marks tickit-sync device tokens.
const TokenPrefix = "tks_"

const tokenBodyLength = 32

// GenerateToken returns a new random device token.
func GenerateToken() (string, error) {
	return id.Secret(TokenPrefix, tokenBodyLength)
}

// Keyring holds the configured device tokens and answers whether a
// presented bearer token belongs to one of them. Safe for concurrent use.
//
// Verified tokens are remembered by SHA-256 digest so argon2 runs once per
// token rather than once per request.
type Keyring struct {
	mu         sync.RWMutex
	entries    []config.TokenConfig
	verified   map[[sha256.Size]byte]string
	generation uint64
}

// NewKeyring builds a keyring from config entries.
func NewKeyring(tokens []config.TokenConfig) *Keyring {
	k := &Keyring{}
	k.Replace(tokens)
	return k
}

// Replace swaps in a new token set and forgets earlier verifications, so a
// revoked token stops working on the next request.
func (k *Keyring) Replace(tokens []config.TokenConfig) {
	entries := make([]config.TokenConfig, len(tokens))
	copy(entries, tokens)

	k.mu.Lock()
	k.entries = entries
	k.verified = make(map[[sha256.Size]byte]string)
	k.generation++
	k.mu.Unlock()
}

// Len returns the number of configured tokens.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}

// Authenticate returns the name of the entry token matches.
func (k *Keyring) Authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	digest := sha256.Sum256([]byte(token))

	k.mu.RLock()
	name, ok := k.verified[digest]
	entries := k.entries
	generation := k.generation
	k.mu.RUnlock()
	if ok {
		return name, true
	}

	for _, e := range entries {
		if !VerifyToken(e.TokenHash, token) {
			continue
		}
		k.mu.Lock()
		// Drop the result if Replace ran while we were hashing.
		if k.generation == generation {
			k.verified[digest] = e.Name
		}
		k.mu.Unlock()
		return e.Name, true
	}
	return "", false
}
