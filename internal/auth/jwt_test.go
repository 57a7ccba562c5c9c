package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAccessToken(t *testing.T) {
	m := NewManager("secret", time.Minute)

	tok, err := m.GenerateAccessToken("u-1", "admin@example.com", "admin")
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerifyAccessToken_Rejects(t *testing.T) {
	m := NewManager("secret", time.Minute)

	other, err := NewManager("other", time.Minute).GenerateAccessToken("u-1", "a@b.c", "admin")
	require.NoError(t, err)

	expired, err := NewManager("secret", time.Nanosecond).GenerateAccessToken("u-1", "a@b.c", "admin")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    "u-1",
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"expired", expired},
		{"refresh token", wrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.VerifyAccessToken(tt.token)
			assert.Error(t, err)
		})
	}

	_, err = m.VerifyAccessToken(wrongType)
	assert.True(t, errors.Is(err, ErrInvalidTokenType))
}
