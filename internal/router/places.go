package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

func (r *Router) GetApiplacesByID(response http.ResponseWriter, request *http.Request) {
	place, err := r.service.GetPlaceByID(request.Context(), chi.URLParam(request, "pid"))
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.PlaceResponse{Place: place})
}

func (r *Router) GetApiplacesuserByUID(response http.ResponseWriter, request *http.Request) {
	places, err := r.service.GetPlacesByUserID(request.Context(), chi.URLParam(request, "uid"))
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.PlacesResponse{Places: places})
}

// PostApiplaces creates a place from a multipart form with an image.
// The creator is always the authenticated user.
func (r *Router) PostApiplaces(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		writeError(response, request, apperr.Auth("Authentication failed"))
		return
	}

	if err := r.parseMultipart(response, request); err != nil {
		writeError(response, request, err)
		return
	}
	defer cleanupMultipart(request)

	imagePath, err := r.saveUpload(request)
	if err != nil {
		writeError(response, request, err)
		return
	}

	placeRequest, err := createPlaceRequestFromForm(request)
	if err != nil {
		r.fail(response, request, err, imagePath)
		return
	}
	if err := r.validate.Struct(placeRequest); err != nil {
		r.fail(response, request, apperr.ValidationFailed(invalidInputsMessage), imagePath)
		return
	}
	if imagePath == "" {
		writeError(response, request, apperr.ValidationFailed("Please send a file"))
		return
	}

	place, err := r.service.CreatePlace(request.Context(), placeRequest, imagePath, userID)
	if err != nil {
		r.fail(response, request, err, imagePath)
		return
	}

	writeJSON(response, http.StatusCreated, models.PlaceResponse{Place: place})
}

func createPlaceRequestFromForm(request *http.Request) (models.CreatePlaceRequest, error) {
	result := models.CreatePlaceRequest{
		Title:       strings.TrimSpace(request.FormValue("title")),
		Description: strings.TrimSpace(request.FormValue("description")),
		Address:     strings.TrimSpace(request.FormValue("address")),
	}

	coordinates := []struct {
		field string
		dst   *float64
	}{
		{"lat", &result.Lat},
		{"lng", &result.Lng},
	}
	for _, coordinate := range coordinates {
		raw := strings.TrimSpace(request.FormValue(coordinate.field))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return result, apperr.ValidationFailed(invalidInputsMessage)
		}
		*coordinate.dst = value
	}

	return result, nil
}

func (r *Router) PatchApiplacesByID(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		writeError(response, request, apperr.Auth("Authentication failed"))
		return
	}

	var updateRequest models.UpdatePlaceRequest
	if err := json.NewDecoder(request.Body).Decode(&updateRequest); err != nil {
		writeError(response, request, apperr.ValidationFailed(invalidInputsMessage))
		return
	}
	updateRequest.Title = strings.TrimSpace(updateRequest.Title)
	updateRequest.Description = strings.TrimSpace(updateRequest.Description)
	if err := r.validate.Struct(updateRequest); err != nil {
		writeError(response, request, apperr.ValidationFailed(invalidInputsMessage))
		return
	}

	place, err := r.service.UpdatePlace(request.Context(), chi.URLParam(request, "pid"), updateRequest, userID)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.PlaceResponse{Place: place})
}

func (r *Router) DeleteApiplacesByID(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		writeError(response, request, apperr.Auth("Authentication failed"))
		return
	}

	if err := r.service.DeletePlace(request.Context(), chi.URLParam(request, "pid"), userID); err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: "Deleted place."})
}
