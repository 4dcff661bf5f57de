// Package credential hashes and generates the opaque API keys used to
// authenticate requests against internal/store's credentials table.
// Keys are high-entropy random tokens, not human-chosen passwords, so
// they are hashed with a fast deterministic digest (SHA-256) rather
// than bcrypt: a 256-bit random token cannot be offline-brute-forced
// the way a low-entropy password can, and a deterministic digest is
// what lets GetCredentialByKeyHash look a key up by equality instead of
// scanning every active credential and calling a slow compare on each.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyPrefix = "dist_"

// Hash returns the deterministic digest stored in credentials.key_hash
// and used to look a presented key up in constant-ish time via an
// indexed equality query.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// Generate produces a new random raw API key (returned to the caller
// exactly once) and its stored hash, for provisioning a Credential row.
func Generate() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	raw = keyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, Hash(raw), nil
}
