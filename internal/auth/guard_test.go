package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
)

func TestGuardAuthenticate(t *testing.T) {
	require.NoError(t, logger.Init("debug"))

	c := newTestCredentials()
	token, err := c.IssueToken(Identity{UserID: "u1", Email: "max@example.com"})
	require.NoError(t, err)

	writeError := func(response http.ResponseWriter, _ *http.Request, err error) {
		appErr := apperr.From(err)
		http.Error(response, appErr.Message, appErr.Code)
	}

	var (
		seenUserID string
		seenOK     bool
	)
	next := http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		seenUserID, seenOK = UserIDFromContext(request.Context())
		response.WriteHeader(http.StatusOK)
	})
	handler := NewGuard(c, writeError).Authenticate(next)

	tests := []struct {
		name         string
		method       string
		header       string
		expectedCode int
		expectedUser string
		expectedOK   bool
	}{
		{"valid bearer token", http.MethodPost, "Bearer " + token, http.StatusOK, "u1", true},
		{"lowercase scheme", http.MethodPatch, "bearer " + token, http.StatusOK, "u1", true},
		{"pre-flight passes without identity", http.MethodOptions, "", http.StatusOK, "", false},
		{"missing header", http.MethodPost, "", http.StatusUnauthorized, "", false},
		{"no scheme", http.MethodPost, token, http.StatusUnauthorized, "", false},
		{"wrong scheme", http.MethodPost, "Basic " + token, http.StatusUnauthorized, "", false},
		{"empty token", http.MethodDelete, "Bearer ", http.StatusUnauthorized, "", false},
		{"invalid token", http.MethodDelete, "Bearer abc.def.ghi", http.StatusUnauthorized, "", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			seenUserID, seenOK = "", false

			request := httptest.NewRequest(test.method, "/api/places", nil)
			if test.header != "" {
				request.Header.Set("Authorization", test.header)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, test.expectedCode, recorder.Code)
			assert.Equal(t, test.expectedUser, seenUserID)
			assert.Equal(t, test.expectedOK, seenOK)
			if test.expectedCode == http.StatusUnauthorized {
				assert.Contains(t, recorder.Body.String(), "Authentication failed")
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := UserIDFromContext(request.Context())
	assert.False(t, ok)

	_, ok = UserIDFromContext(WithUserID(request.Context(), ""))
	assert.False(t, ok)

	userID, ok := UserIDFromContext(WithUserID(request.Context(), "u1"))
	assert.True(t, ok)
	assert.Equal(t, "u1", userID)
}
