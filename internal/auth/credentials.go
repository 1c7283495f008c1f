// Package auth issues and verifies credentials: bcrypt password hashes and
// HS256 JWTs carrying the user's identity. It also provides the HTTP guard
// that attaches that identity to the request context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
)

const (
	// DefaultHashCost is the bcrypt work factor used for new passwords.
	DefaultHashCost = 12

	DefaultTokenTTL = time.Hour
)

// ErrSigning is wrapped into the CryptoError returned when a token cannot be signed.
var ErrSigning = errors.New("token signing failed")

// Claims represents the JWT claims used by the system.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID string
	Email  string
}

// Credentials hashes passwords and issues tokens. The secret is injected
// at construction; the package never reads it from the environment.
type Credentials struct {
	secret   []byte
	tokenTTL time.Duration
	hashCost int
	now      func() time.Time
}

type CredentialsOption func(*Credentials)

func WithTokenTTL(ttl time.Duration) CredentialsOption {
	return func(c *Credentials) {
		if ttl > 0 {
			c.tokenTTL = ttl
		}
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) CredentialsOption {
	return func(c *Credentials) {
		c.hashCost = cost
	}
}

// WithClock sets the time source used for issued-at and expiry claims.
func WithClock(now func() time.Time) CredentialsOption {
	return func(c *Credentials) {
		c.now = now
	}
}

func NewCredentials(secret string, opts ...CredentialsOption) *Credentials {
	c := &Credentials{
		secret:   []byte(secret),
		tokenTTL: DefaultTokenTTL,
		hashCost: DefaultHashCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Credentials) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.hashCost)
	if err != nil {
		return "", apperr.Crypto("Could not create user, please try again.", err)
	}

	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. Any error, including
// a malformed hash, counts as a mismatch.
func (c *Credentials) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (c *Credentials) IssueToken(identity Identity) (string, error) {
	if len(c.secret) == 0 {
		return "", apperr.Crypto("Could not issue token, please try again later.", ErrSigning)
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
		},
		UserID: identity.UserID,
		Email:  identity.Email,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", apperr.Crypto(
			"Could not issue token, please try again later.",
			fmt.Errorf("%w: %v", ErrSigning, err),
		)
	}

	return tokenString, nil
}

// VerifyToken checks the signature, algorithm and expiry of tokenString.
// Every failure is an AuthError; the cause is kept for logging.
func (c *Credentials) VerifyToken(tokenString string) (Identity, error) {
	if len(c.secret) == 0 {
		return Identity{}, apperr.Auth(authFailedMessage).WithCause(ErrSigning)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.secret, nil
		},
	)
	if err != nil {
		return Identity{}, apperr.Auth(authFailedMessage).WithCause(err)
	}
	if !token.Valid {
		return Identity{}, apperr.Auth(authFailedMessage).WithCause(errors.New("token is not valid"))
	}
	if claims.UserID == "" {
		return Identity{}, apperr.Auth(authFailedMessage).WithCause(errors.New("token has no userId claim"))
	}

	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
