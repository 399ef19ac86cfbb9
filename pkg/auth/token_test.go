package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenFormat(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, ValidTokenFormat(token))
	assert.Contains(t, token, TokenPrefix)
}

func TestGenerateTokenIsUnique(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashTokenIsDeterministic(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.Equal(t, HashToken(token), HashToken(token))
	assert.Len(t, HashToken(token), 64)

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, HashToken(token), HashToken(other))
}

func TestValidTokenFormat(t *testing.T) {
	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"empty", "", false},
		{"wrong prefix", "other_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
		{"prefix only", "hearth_", false},
		{"not base64", "hearth_!!!not-base64!!!", false},
		{"too short", "hearth_AAAA", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidTokenFormat(tt.token))
		})
	}
}

func TestTokenDisplayPrefix(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	prefix := TokenDisplayPrefix(token)
	assert.Len(t, prefix, len(TokenPrefix)+4)
	assert.Equal(t, token[:len(prefix)], prefix)
}

func TestHasScope(t *testing.T) {
	read := &Context{UserID: 1, Scopes: []string{ScopeRecordsRead}}
	assert.True(t, read.HasScope(ScopeRecordsRead))
	assert.False(t, read.HasScope(ScopeRecordsWrite))

	admin := &Context{UserID: 1, Scopes: []string{ScopeAdmin}}
	assert.True(t, admin.HasScope(ScopeRecordsRead))
	assert.True(t, admin.HasScope(ScopeRecordsWrite))
	assert.True(t, admin.HasScope(ScopeAdmin))

	var nilCtx *Context
	assert.False(t, nilCtx.HasScope(ScopeRecordsRead))
}
