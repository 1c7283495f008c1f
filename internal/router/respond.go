package router

import (
	"encoding/json"
	"net/http"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

// writeError is the single place where errors become HTTP replies.
// Only the message and status of the application error reach the client.
func writeError(response http.ResponseWriter, request *http.Request, err error) {
	appErr := apperr.From(err)

	if appErr.Code >= http.StatusInternalServerError {
		logger.Log.Errorw(
			"request failed",
			"method", request.Method,
			"uri", request.RequestURI,
			"kind", appErr.Kind.String(),
			"error", err,
		)
	} else {
		logger.Log.Debugw(
			"request rejected",
			"method", request.Method,
			"uri", request.RequestURI,
			"kind", appErr.Kind.String(),
			"error", err,
		)
	}

	writeJSON(response, appErr.Code, models.MessageResponse{Message: appErr.Message})
}

func writeJSON(response http.ResponseWriter, statusCode int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugw("could not write response", "error", err)
	}
}

// fail releases an image stored earlier in the request, then writes err.
func (r *Router) fail(response http.ResponseWriter, request *http.Request, err error, imagePath string) {
	if imagePath != "" {
		if releaseErr := r.files.Release(imagePath); releaseErr != nil {
			logger.Log.Warnw("could not release image", "path", imagePath, "error", releaseErr)
		}
	}

	writeError(response, request, err)
}
