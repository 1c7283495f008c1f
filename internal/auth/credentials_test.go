package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
)

const testSecret = "supersecret_dont_share"

func newTestCredentials(opts ...CredentialsOption) *Credentials {
	return NewCredentials(testSecret, append([]CredentialsOption{WithHashCost(bcrypt.MinCost)}, opts...)...)
}

func TestHashAndVerifyPassword(t *testing.T) {
	c := newTestCredentials()

	hash, err := c.HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, c.VerifyPassword("secret123", hash))
	assert.False(t, c.VerifyPassword("secret124", hash))
	assert.False(t, c.VerifyPassword("secret123", "not-a-bcrypt-hash"))
	assert.False(t, c.VerifyPassword("secret123", ""))
}

func TestHashPasswordFailureIsCryptoError(t *testing.T) {
	c := NewCredentials(testSecret, WithHashCost(bcrypt.MaxCost+1))

	_, err := c.HashPassword("secret123")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCrypto, apperr.KindOf(err))
}

func TestIssueAndVerifyToken(t *testing.T) {
	c := newTestCredentials()

	token, err := c.IssueToken(Identity{UserID: "u1", Email: "max@example.com"})
	require.NoError(t, err)

	identity, err := c.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Email: "max@example.com"}, identity)
}

func TestIssueTokenWithoutSecret(t *testing.T) {
	c := NewCredentials("")

	_, err := c.IssueToken(Identity{UserID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSigning)
	assert.Equal(t, apperr.KindCrypto, apperr.KindOf(err))
}

func TestVerifyTokenRejects(t *testing.T) {
	c := newTestCredentials()

	valid, err := c.IssueToken(Identity{UserID: "u1", Email: "max@example.com"})
	require.NoError(t, err)
	other, err := c.IssueToken(Identity{UserID: "u2", Email: "manu@example.com"})
	require.NoError(t, err)

	expired, err := newTestCredentials(
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }),
	).IssueToken(Identity{UserID: "u1"})
	require.NoError(t, err)

	foreign, err := NewCredentials("another secret").IssueToken(Identity{UserID: "u1"})
	require.NoError(t, err)

	validParts := strings.Split(valid, ".")
	otherParts := strings.Split(other, ".")
	tampered := strings.Join([]string{validParts[0], otherParts[1], validParts[2]}, ".")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered payload", tampered},
		{"signed with another secret", foreign},
		{"alg none", unsigned},
		{"no userId claim", anonymous},
		{"garbage", "not.a.token"},
		{"empty", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := c.VerifyToken(test.token)
			require.Error(t, err)
			assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
		})
	}
}
