package tcp

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	auth := NewAuthService("secret")

	token, err := auth.IssueToken("patch-1", time.Hour)
	require.NoError(t, err)

	subject, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "patch-1", subject)
}

func TestAuthService_NoExpiry(t *testing.T) {
	auth := NewAuthService("secret")

	token, err := auth.IssueToken("patch-1", 0)
	require.NoError(t, err)

	subject, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "patch-1", subject)
}

func TestAuthService_Rejects(t *testing.T) {
	auth := NewAuthService("secret")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "patch-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	forged, err := NewAuthService("other").IssueToken("patch-1", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "patch-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", forged},
		{"no subject", noSubject},
		{"unsigned", unsigned},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}
