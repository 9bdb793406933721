package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify_RoundTrips(t *testing.T) {
	issuer := New([]byte("secret"), time.Hour)
	token, err := issuer.Issue(42, "a1b2c3")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.RecsystemID)
	assert.Equal(t, "a1b2c3", claims.TokenID)
	assert.Equal(t, RoleRecsystem, claims.Role)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	issuer := New([]byte("secret"), -time.Hour)
	token, err := issuer.Issue(1, "abc")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	issuer := New([]byte("secret"), time.Hour)
	token, err := issuer.Issue(1, "abc")
	require.NoError(t, err)

	other := New([]byte("different"), time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsMalformedToken(t *testing.T) {
	issuer := New([]byte("secret"), time.Hour)
	_, err := issuer.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsStaleTokenIDAfterRotation(t *testing.T) {
	issuer := New([]byte("secret"), time.Hour)
	oldToken, err := issuer.Issue(7, "old-token-id")
	require.NoError(t, err)

	claims, err := issuer.Verify(oldToken)
	require.NoError(t, err)

	currentTokenID := "new-token-id" // simulates refresh_token having rotated it
	assert.NotEqual(t, currentTokenID, claims.TokenID)
}
