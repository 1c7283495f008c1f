// Package service implements the business operations: place ownership
// (create, update, delete with the creator's place set kept in step) and
// user accounts (signup, login, listing).
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

type transactioner interface {
	BeginTransaction(ctx context.Context) (storage.Transaction, error)

	CommitTransaction(transaction storage.Transaction) error

	RollbackTransaction(transaction storage.Transaction) error
}

type userKeeper interface {
	FindUserByID(ctx context.Context, userID string, transaction storage.Transaction) (*models.User, error)

	FindUserByEmail(ctx context.Context, email string, transaction storage.Transaction) (*models.User, error)

	ListUsers(ctx context.Context) ([]*models.User, error)

	InsertUser(ctx context.Context, usr *models.User, transaction storage.Transaction) (string, error)

	SaveUser(ctx context.Context, usr *models.User, transaction storage.Transaction) error
}

type placeKeeper interface {
	FindPlaceByID(
		ctx context.Context,
		placeID string,
		withCreator bool,
		transaction storage.Transaction,
	) (*models.Place, error)

	FindPlacesByIDs(ctx context.Context, placeIDs []string) ([]*models.Place, error)

	FindPlacesByCreator(ctx context.Context, userID string, transaction storage.Transaction) ([]*models.Place, error)

	InsertPlace(ctx context.Context, place *models.Place, transaction storage.Transaction) (string, error)

	UpdatePlace(ctx context.Context, place *models.Place, transaction storage.Transaction) error

	DeletePlace(ctx context.Context, placeID string, transaction storage.Transaction) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type entityStore interface {
	transactioner
	userKeeper
	placeKeeper
	pinger
}

type fileReleaser interface {
	Release(path string) error
}

type credentials interface {
	HashPassword(password string) (string, error)

	VerifyPassword(password, hash string) bool

	IssueToken(identity auth.Identity) (string, error)
}

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 50 * time.Millisecond
)

type Service struct {
	db          entityStore
	files       fileReleaser
	credentials credentials
	newBackoff  func() retry.Backoff
}

type Option func(*Service)

// WithRetryBackoff sets the backoff used when a transaction hits a write conflict.
// newBackoff is called once per operation because backoffs are stateful.
func WithRetryBackoff(newBackoff func() retry.Backoff) Option {
	return func(s *Service) {
		s.newBackoff = newBackoff
	}
}

func New(
	db entityStore,
	files fileReleaser,
	credentials credentials,
	opts ...Option,
) *Service {
	s := &Service{
		db:          db,
		files:       files,
		credentials: credentials,
		newBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(defaultMaxRetries, retry.NewExponential(defaultRetryBackoff))
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ping reports whether the entity store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// inTransaction runs fn inside a transaction and commits it. The whole unit
// is retried while the store reports storage.ErrConflict. Anything short of a
// successful commit is rolled back.
func (s *Service) inTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx storage.Transaction) error,
) error {
	return retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		tx, err := s.db.BeginTransaction(ctx)
		if err != nil {
			return retryable(err)
		}

		committed := false
		defer func() {
			if committed {
				return
			}
			if err := s.db.RollbackTransaction(tx); err != nil && !errors.Is(err, storage.ErrTransactionDone) {
				logger.Log.Warnw("rollback failed", "error", err)
			}
		}()

		if err := fn(ctx, tx); err != nil {
			return retryable(err)
		}

		if err := s.db.CommitTransaction(tx); err != nil {
			return retryable(err)
		}
		committed = true

		return nil
	})
}

func retryable(err error) error {
	if errors.Is(err, storage.ErrConflict) {
		logger.Log.Debugw("transaction conflict, retrying", "error", err)
		return retry.RetryableError(err)
	}

	return err
}
