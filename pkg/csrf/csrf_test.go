package csrf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T, key string) *Signer {
	t.Helper()
	s, err := NewSigner([]byte(key))
	require.NoError(t, err)
	return s
}

func TestSigner(t *testing.T) {
	tests := []struct {
		name         string
		issueKey     string
		issueSession string
		checkKey     string
		checkSession string
		wantValid    bool
	}{
		{"same key and session", "0123456789abcdef", "sess-1", "0123456789abcdef", "sess-1", true},
		{"other session", "0123456789abcdef", "sess-1", "0123456789abcdef", "sess-2", false},
		{"other key", "0123456789abcdef", "sess-1", "fedcba9876543210", "sess-1", false},
		{"both differ", "0123456789abcdef", "sess-1", "fedcba9876543210", "sess-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := newSigner(t, tt.issueKey).Issue(tt.issueSession)
			assert.Equal(t, tt.wantValid, newSigner(t, tt.checkKey).Valid(token, tt.checkSession))
		})
	}
}

func TestSigner_RejectsMalformedTokens(t *testing.T) {
	s := newSigner(t, "0123456789abcdef")
	token := s.Issue("sess-1")
	sum, nonce, _ := strings.Cut(token, ".")

	for name, tok := range map[string]string{
		"empty":         "",
		"no separator":  sum + nonce,
		"no nonce":      sum + ".",
		"not hex":       "zz" + sum[2:] + "." + nonce,
		"swapped nonce": sum + "." + strings.Repeat("0", len(nonce)),
		"extra part":    token + ".x",
	} {
		assert.False(t, s.Valid(tok, "sess-1"), name)
	}
	assert.False(t, s.Valid(token, ""), "tokens never match an empty session ID")
}

func TestSigner_TokensAreUnique(t *testing.T) {
	s := newSigner(t, "0123456789abcdef")
	assert.NotEqual(t, s.Issue("sess-1"), s.Issue("sess-1"))
}

func TestNewSigner_KeyLength(t *testing.T) {
	_, err := NewSigner([]byte("short"))
	assert.ErrorIs(t, err, ErrShortKey)

	key, err := NewKey()
	require.NoError(t, err)
	assert.Len(t, key, KeyBytes)
	_, err = NewSigner(key)
	assert.NoError(t, err)
}
