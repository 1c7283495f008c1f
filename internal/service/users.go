package service

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

const wrongCredentialsMessage = "Could not identify user, credentials seem to be wrong."

func (s *Service) GetUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Persistence("Fetching users failed, please try again later.", err)
	}

	return users, nil
}

// Signup registers a user with an empty place set and logs them in.
func (s *Service) Signup(
	ctx context.Context,
	request models.SignupRequest,
	imagePath string,
) (*models.AuthResponse, error) {
	_, err := s.db.FindUserByEmail(ctx, request.Email, nil)
	if err == nil {
		return nil, apperr.ValidationFailed("User exists already, please login instead.")
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Persistence("Signing up failed, please try again later.", err)
	}

	if imagePath == "" {
		return nil, apperr.ValidationFailed("Please send a file")
	}

	hash, err := s.credentials.HashPassword(request.Password)
	if err != nil {
		return nil, err
	}

	usr := &models.User{
		Name:     request.Name,
		Email:    request.Email,
		Password: hash,
		Image:    imagePath,
		Places:   []string{},
	}
	userID, err := s.db.InsertUser(ctx, usr, nil)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, apperr.ValidationFailed("User exists already, please login instead.")
	}
	if err != nil {
		return nil, apperr.Persistence("Signing up failed, please try again later.", err)
	}

	token, err := s.credentials.IssueToken(auth.Identity{UserID: userID, Email: usr.Email})
	if err != nil {
		return nil, apperr.Crypto("Signing up failed, please try again later.", err)
	}

	return &models.AuthResponse{UserID: userID, Email: usr.Email, Token: token}, nil
}

// Login checks the credentials and issues a token. Unknown email and wrong
// password are reported identically.
func (s *Service) Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error) {
	usr, err := s.db.FindUserByEmail(ctx, request.Email, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Auth(wrongCredentialsMessage)
	}
	if err != nil {
		return nil, apperr.Persistence("Logging in failed, please try again later.", err)
	}

	if !s.credentials.VerifyPassword(request.Password, usr.Password) {
		return nil, apperr.Auth(wrongCredentialsMessage)
	}

	token, err := s.credentials.IssueToken(auth.Identity{UserID: usr.ID, Email: usr.Email})
	if err != nil {
		return nil, apperr.Crypto("Logging in failed, please try again later.", err)
	}

	return &models.AuthResponse{UserID: usr.ID, Email: usr.Email, Token: token}, nil
}
