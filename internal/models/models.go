// Package models defines the entities and request/response payloads
// shared by the storage, service and router layers.
package models

// Storage backends the application can run on.
const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeMongo
	StorageTypeMemory
)

// CreatePlaceRequest carries the validated fields of a new place.
// Lat and Lng are optional; zero values fall back to DefaultLocation.
type CreatePlaceRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description" validate:"min=5"`
	Address     string  `json:"address" validate:"required"`
	Lat         float64 `json:"lat" validate:"omitempty,latitude"`
	Lng         float64 `json:"lng" validate:"omitempty,longitude"`
}

// UpdatePlaceRequest carries the fields an owner may change.
type UpdatePlaceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"min=5"`
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

// LoginRequest is not validated: malformed credentials fail like wrong ones.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

type PlaceResponse struct {
	Place *Place `json:"place"`
}

type PlacesResponse struct {
	Places []*Place `json:"places"`
}

type UserResponse struct {
	User *User `json:"user"`
}

type UsersResponse struct {
	Users []*User `json:"users"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
