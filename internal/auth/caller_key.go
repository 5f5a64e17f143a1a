package auth

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// CallerKeyPrefix marks derived caller keys
const CallerKeyPrefix = "ck_"

// ErrEmptyPepper is returned when no derivation secret is configured
var ErrEmptyPepper = errors.New("caller key pepper must not be empty")

// KeyDeriver turns presented API keys into opaque caller keys. The raw key is
// never stored; the same key and pepper always derive the same caller key.
type KeyDeriver struct {
	key []byte
}

// NewKeyDeriver creates a deriver from a server-side pepper of any length
func NewKeyDeriver(pepper []byte) (*KeyDeriver, error) {
	if len(pepper) == 0 {
		return nil, ErrEmptyPepper
	}
	sum := blake2b.Sum256(pepper)
	return &KeyDeriver{key: sum[:]}, nil
}

// Derive returns the caller key for apiKey
func (d *KeyDeriver) Derive(apiKey string) string {
	// A 32-byte key is always within blake2b's limit, so New256 cannot fail here.
	h, _ := blake2b.New256(d.key)
	h.Write([]byte(apiKey))
	sum := h.Sum(nil)
	return CallerKeyPrefix + hex.EncodeToString(sum[:16])
}
