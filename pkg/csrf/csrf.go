// Package csrf issues and checks form tokens bound to a session ID.
//
// A token is hex(HMAC-SHA256(key, message)) + "." + hex(nonce), where the
// message length-prefixes both the session ID and the nonce so neither can
// bleed into the other.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const nonceBytes = 32

// KeyBytes is the size of a generated signing key.
const KeyBytes = 32

// ErrShortKey is returned for signing keys under 16 bytes.
var ErrShortKey = errors.New("csrf: signing key must be at least 16 bytes")

// NewKey returns a random signing key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("csrf: failed to generate key: %w", err)
	}
	return key, nil
}

// Signer issues and checks tokens with one key.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) < 16 {
		return nil, ErrShortKey
	}
	return &Signer{key: append([]byte(nil), key...)}, nil
}

func (s *Signer) mac(sessionID, nonce string) []byte {
	h := hmac.New(sha256.New, s.key)
	_, _ = fmt.Fprintf(h, "%d!%s!%d!%s", len(sessionID), sessionID, len(nonce), nonce)
	return h.Sum(nil)
}

// Issue returns a fresh token for sessionID.
func (s *Signer) Issue(sessionID string) string {
	buf := make([]byte, nonceBytes)
	_, _ = rand.Read(buf)
	nonce := hex.EncodeToString(buf)
	return hex.EncodeToString(s.mac(sessionID, nonce)) + "." + nonce
}

// Valid reports whether token was issued by this Signer for sessionID.
func (s *Signer) Valid(token, sessionID string) bool {
	sum, nonce, ok := strings.Cut(token, ".")
	if !ok || sessionID == "" || nonce == "" {
		return false
	}
	got, err := hex.DecodeString(sum)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(sessionID, nonce))
}
