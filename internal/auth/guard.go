package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
)

const authFailedMessage = "Authentication failed"

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

type tokenVerifier interface {
	VerifyToken(tokenString string) (Identity, error)
}

// ErrorWriter renders err as the HTTP response.
type ErrorWriter func(response http.ResponseWriter, request *http.Request, err error)

// Guard rejects requests that do not carry a valid bearer token.
type Guard struct {
	verifier   tokenVerifier
	writeError ErrorWriter
}

func NewGuard(verifier tokenVerifier, writeError ErrorWriter) *Guard {
	return &Guard{
		verifier:   verifier,
		writeError: writeError,
	}
}

// Authenticate is an HTTP middleware that verifies the Authorization header
// and stores the user ID in the request context. Pre-flight OPTIONS requests
// pass through without an identity.
func (g *Guard) Authenticate(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodOptions {
			h.ServeHTTP(response, request)
			return
		}

		tokenString, err := bearerToken(request)
		if err != nil {
			logger.Log.Debugln("Error calling the `bearerToken()`: ", zap.Error(err))
			g.writeError(response, request, apperr.Auth(authFailedMessage))
			return
		}

		identity, err := g.verifier.VerifyToken(tokenString)
		if err != nil {
			logger.Log.Debugln("Error calling the `g.verifier.VerifyToken()`: ", zap.Error(err))
			g.writeError(response, request, apperr.Auth(authFailedMessage))
			return
		}

		h.ServeHTTP(response, request.WithContext(WithUserID(request.Context(), identity.UserID)))
	}

	return http.HandlerFunc(middleware)
}

func bearerToken(request *http.Request) (string, error) {
	header := request.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("authorization header is missing")
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("bearer token is empty")
	}

	return token, nil
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
