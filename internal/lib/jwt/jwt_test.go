package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionToken_RoundTrip(t *testing.T) {
	token, err := NewSessionToken("u1", "alice", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, Claims{UserID: "u1", Username: "alice"}, claims)
}

func TestParseSessionToken_Rejects(t *testing.T) {
	expired, err := NewSessionToken("u1", "alice", "secret", -time.Minute)
	require.NoError(t, err)

	other, err := NewSessionToken("u1", "alice", "other-secret", time.Hour)
	require.NoError(t, err)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": "u1",
		"typ": "access",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	wrongType, err := access.SignedString([]byte("secret"))
	require.NoError(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"uid": "u1", "typ": "session"})
	withoutExpiry, err := noExp.SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   other,
		"wrong type":     wrongType,
		"without expiry": withoutExpiry,
		"garbage":        "not-a-token",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSessionToken(token, "secret")
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
