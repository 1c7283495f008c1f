// Package storage declares the entity store contract shared by every backend.
//
// Data methods take an optional Transaction. A nil transaction means the call
// runs on its own; a non-nil one must have been obtained from the same store's
// BeginTransaction and makes the call part of that atomic unit.
package storage

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned on a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")

	// ErrConflict is returned when a transaction lost a write race and may be retried.
	ErrConflict = errors.New("transaction conflict")

	// ErrForeignTransaction is returned when a transaction from another store is passed in.
	ErrForeignTransaction = errors.New("transaction does not belong to this store")

	// ErrTransactionDone is returned when a finished transaction is used again.
	ErrTransactionDone = errors.New("transaction has already been committed or rolled back")
)

// Transaction is an opaque handle to an open atomic unit of work.
// Each backend supplies its own implementation.
type Transaction interface {
	// Done reports whether the transaction was committed or rolled back.
	Done() bool
}

type Transactioner interface {
	BeginTransaction(ctx context.Context) (Transaction, error)

	CommitTransaction(transaction Transaction) error

	RollbackTransaction(transaction Transaction) error
}

type UserKeeper interface {
	FindUserByID(ctx context.Context, userID string, transaction Transaction) (*models.User, error)

	FindUserByEmail(ctx context.Context, email string, transaction Transaction) (*models.User, error)

	ListUsers(ctx context.Context) ([]*models.User, error)

	InsertUser(ctx context.Context, usr *models.User, transaction Transaction) (string, error)

	SaveUser(ctx context.Context, usr *models.User, transaction Transaction) error
}

type PlaceKeeper interface {
	FindPlaceByID(
		ctx context.Context,
		placeID string,
		withCreator bool,
		transaction Transaction,
	) (*models.Place, error)

	FindPlacesByIDs(ctx context.Context, placeIDs []string) ([]*models.Place, error)

	FindPlacesByCreator(ctx context.Context, userID string, transaction Transaction) ([]*models.Place, error)

	InsertPlace(ctx context.Context, place *models.Place, transaction Transaction) (string, error)

	UpdatePlace(ctx context.Context, place *models.Place, transaction Transaction) error

	DeletePlace(ctx context.Context, placeID string, transaction Transaction) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Storage is the full entity store.
type Storage interface {
	Transactioner
	UserKeeper
	PlaceKeeper
	Pinger
	Close() error
}
