package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		code int
	}{
		{"not found", NotFound("nope"), KindNotFound, http.StatusNotFound},
		{"forbidden answers 401", Forbidden("not yours"), KindForbidden, http.StatusUnauthorized},
		{"validation", ValidationFailed("bad"), KindValidationFailed, http.StatusUnprocessableEntity},
		{"auth", Auth("Authentication failed"), KindAuth, http.StatusUnauthorized},
		{"persistence", Persistence("db", errors.New("boom")), KindPersistence, http.StatusInternalServerError},
		{"crypto", Crypto("hash", errors.New("boom")), KindCrypto, http.StatusInternalServerError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.kind, test.err.Kind)
			assert.Equal(t, test.code, test.err.Code)
		})
	}
}

func TestFromUnwrapsWrappedErrors(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("saving place: %w", Persistence("Creating place failed, please try again.", cause))

	appErr := From(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, KindPersistence, appErr.Kind)
	assert.Equal(t, "Creating place failed, please try again.", appErr.Message)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, KindPersistence, KindOf(wrapped))
}

func TestFromUnknownError(t *testing.T) {
	appErr := From(errors.New("whatever"))
	assert.Equal(t, KindUnknown, appErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	assert.Equal(t, UnknownMessage, appErr.Message)
}

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("Could not find place for this id")
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound})
	assert.NotErrorIs(t, err, &Error{Kind: KindForbidden})
	assert.Equal(t, "not_found", KindNotFound.String())
}

func TestWithCauseKeepsOriginalUntouched(t *testing.T) {
	base := Auth("Authentication failed")
	cause := errors.New("token is expired")

	wrapped := base.WithCause(cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, base.Err)
	assert.Equal(t, base.Message, wrapped.Message)
	assert.Equal(t, http.StatusUnauthorized, wrapped.Code)
}
