package service

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

func (s *Service) GetPlaceByID(ctx context.Context, placeID string) (*models.Place, error) {
	place, err := s.db.FindPlaceByID(ctx, placeID, false, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Could not find a place for the provided id.")
	}
	if err != nil {
		return nil, apperr.Persistence("Something went wrong, could not find a place.", err)
	}

	return place, nil
}

// GetPlacesByUserID resolves the user's place set. A user without places
// yields an empty list, an unknown user a NotFound.
func (s *Service) GetPlacesByUserID(ctx context.Context, userID string) ([]*models.Place, error) {
	usr, err := s.db.FindUserByID(ctx, userID, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Could not find places for the provided user id.")
	}
	if err != nil {
		return nil, apperr.Persistence("Fetching places failed, please try again later.", err)
	}

	places, err := s.db.FindPlacesByIDs(ctx, usr.Places)
	if err != nil {
		return nil, apperr.Persistence("Fetching places failed, please try again later.", err)
	}

	return places, nil
}

// CreatePlace stores a new place owned by creatorID and adds it to the
// creator's place set in the same transaction.
func (s *Service) CreatePlace(
	ctx context.Context,
	request models.CreatePlaceRequest,
	imagePath string,
	creatorID string,
) (*models.Place, error) {
	_, err := s.db.FindUserByID(ctx, creatorID, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Could not find user by provided id.")
	}
	if err != nil {
		return nil, apperr.Persistence("Creating place failed, please try again.", err)
	}

	location := models.DefaultLocation
	if request.Lat != 0 || request.Lng != 0 {
		location = models.Location{Lat: request.Lat, Lng: request.Lng}
	}

	var created *models.Place
	err = s.inTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		place := &models.Place{
			Title:       request.Title,
			Description: request.Description,
			Image:       imagePath,
			Location:    location,
			Address:     request.Address,
			Creator:     creatorID,
		}

		placeID, err := s.db.InsertPlace(ctx, place, tx)
		if err != nil {
			return err
		}
		place.ID = placeID

		creator, err := s.db.FindUserByID(ctx, creatorID, tx)
		if err != nil {
			return err
		}
		creator.AddPlace(placeID)
		if err := s.db.SaveUser(ctx, creator, tx); err != nil {
			return err
		}

		created = place
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("Creating place failed, please try again.", err)
	}

	return created, nil
}

// UpdatePlace changes title and description of a place owned by callerID.
func (s *Service) UpdatePlace(
	ctx context.Context,
	placeID string,
	request models.UpdatePlaceRequest,
	callerID string,
) (*models.Place, error) {
	place, err := s.db.FindPlaceByID(ctx, placeID, false, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Could not find place for this id.")
	}
	if err != nil {
		return nil, apperr.Persistence("Something went wrong, could not update place.", err)
	}

	if place.Creator != callerID {
		return nil, apperr.Forbidden("You are not allowed to edit this place.")
	}

	place.Title = request.Title
	place.Description = request.Description

	err = s.db.UpdatePlace(ctx, place, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Could not find place for this id.")
	}
	if err != nil {
		return nil, apperr.Persistence("Something went wrong, could not update place.", err)
	}

	return place, nil
}

// DeletePlace removes a place owned by callerID together with its entry in
// the owner's place set, then releases the place image.
func (s *Service) DeletePlace(ctx context.Context, placeID string, callerID string) error {
	place, err := s.db.FindPlaceByID(ctx, placeID, true, nil)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Could not find place for this id.")
	}
	if err != nil {
		return apperr.Persistence("Something went wrong, could not delete place.", err)
	}

	if place.Creator != callerID {
		return apperr.Forbidden("You are not allowed to delete this place.")
	}

	err = s.inTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		if err := s.db.DeletePlace(ctx, placeID, tx); err != nil {
			return err
		}

		owner, err := s.db.FindUserByID(ctx, place.Creator, tx)
		if err != nil {
			return err
		}
		owner.RemovePlace(placeID)

		return s.db.SaveUser(ctx, owner, tx)
	})
	// The place may be gone by now if a concurrent delete won the race.
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Could not find place for this id.")
	}
	if err != nil {
		return apperr.Persistence("Something went wrong, could not delete place.", err)
	}

	s.releaseImage(place.Image)

	return nil
}

// ReconcileUserPlaces rebuilds the user's place set from the places that
// name the user as creator.
func (s *Service) ReconcileUserPlaces(ctx context.Context, userID string) (*models.User, error) {
	var reconciled *models.User
	err := s.inTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		usr, err := s.db.FindUserByID(ctx, userID, tx)
		if err != nil {
			return err
		}

		places, err := s.db.FindPlacesByCreator(ctx, userID, tx)
		if err != nil {
			return err
		}

		usr.Places = make([]string, 0, len(places))
		for _, place := range places {
			usr.AddPlace(place.ID)
		}
		if err := s.db.SaveUser(ctx, usr, tx); err != nil {
			return err
		}

		reconciled = usr
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Could not find user by provided id.")
	}
	if err != nil {
		return nil, apperr.Persistence("Reconciling places failed, please try again.", err)
	}

	return reconciled, nil
}

func (s *Service) releaseImage(imagePath string) {
	if imagePath == "" {
		return
	}
	if err := s.files.Release(imagePath); err != nil {
		logger.Log.Warnw("could not release image", "path", imagePath, "error", err)
	}
}
