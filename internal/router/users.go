package router

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

func (r *Router) GetApiusers(response http.ResponseWriter, request *http.Request) {
	users, err := r.service.GetUsers(request.Context())
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.UsersResponse{Users: users})
}

// PostApiuserssignup registers a user from a multipart form with an avatar image.
func (r *Router) PostApiuserssignup(response http.ResponseWriter, request *http.Request) {
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

	signupRequest := models.SignupRequest{
		Name:     strings.TrimSpace(request.FormValue("name")),
		Email:    strings.TrimSpace(request.FormValue("email")),
		Password: request.FormValue("password"),
	}
	if err := r.validate.Struct(signupRequest); err != nil {
		r.fail(response, request, apperr.ValidationFailed(invalidInputsMessage), imagePath)
		return
	}

	authResponse, err := r.service.Signup(request.Context(), signupRequest, imagePath)
	if err != nil {
		r.fail(response, request, err, imagePath)
		return
	}

	writeJSON(response, http.StatusCreated, authResponse)
}

func (r *Router) PostApiuserslogin(response http.ResponseWriter, request *http.Request) {
	var loginRequest models.LoginRequest
	if err := json.NewDecoder(request.Body).Decode(&loginRequest); err != nil {
		writeError(response, request, apperr.ValidationFailed(invalidInputsMessage))
		return
	}

	authResponse, err := r.service.Login(request.Context(), loginRequest)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, authResponse)
}

// PostApiusersreconcile rebuilds the caller's place set from the stored places.
func (r *Router) PostApiusersreconcile(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		writeError(response, request, apperr.Auth("Authentication failed"))
		return
	}

	usr, err := r.service.ReconcileUserPlaces(request.Context(), userID)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, http.StatusOK, models.UserResponse{User: usr})
}
