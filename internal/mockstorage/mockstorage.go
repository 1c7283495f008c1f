// Package mockstorage provides a testify-based mock implementation
// of the entity store. It is used to inject failures into service and
// router tests.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

// Transaction is the transaction handle returned by StorageMock.
type Transaction struct {
	Finished bool
}

func (t *Transaction) Done() bool {
	return t.Finished
}

// StorageMock is a testify mock that implements storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnFindUserByID, if set, replaces the generic mock handler for FindUserByID.
	// It helps when the same user must be returned as a fresh copy on every call.
	OnFindUserByID func(ctx context.Context, userID string, transaction storage.Transaction) (*models.User, error)
}

var _ storage.Storage = (*StorageMock)(nil)

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StorageMock) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(storage.Transaction)
	return tx, args.Error(1)
}

func (m *StorageMock) CommitTransaction(tx storage.Transaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) RollbackTransaction(tx storage.Transaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) FindUserByID(
	ctx context.Context,
	userID string,
	transaction storage.Transaction,
) (*models.User, error) {
	if m.OnFindUserByID != nil {
		return m.OnFindUserByID(ctx, userID, transaction)
	}
	args := m.Called(ctx, userID, transaction)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

func (m *StorageMock) FindUserByEmail(
	ctx context.Context,
	email string,
	transaction storage.Transaction,
) (*models.User, error) {
	args := m.Called(ctx, email, transaction)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

func (m *StorageMock) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Error(1)
}

func (m *StorageMock) InsertUser(ctx context.Context, usr *models.User, transaction storage.Transaction) (string, error) {
	args := m.Called(ctx, usr, transaction)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) SaveUser(ctx context.Context, usr *models.User, transaction storage.Transaction) error {
	args := m.Called(ctx, usr, transaction)
	return args.Error(0)
}

func (m *StorageMock) FindPlaceByID(
	ctx context.Context,
	placeID string,
	withCreator bool,
	transaction storage.Transaction,
) (*models.Place, error) {
	args := m.Called(ctx, placeID, withCreator, transaction)
	place, _ := args.Get(0).(*models.Place)
	return place, args.Error(1)
}

func (m *StorageMock) FindPlacesByIDs(ctx context.Context, placeIDs []string) ([]*models.Place, error) {
	args := m.Called(ctx, placeIDs)
	places, _ := args.Get(0).([]*models.Place)
	return places, args.Error(1)
}

func (m *StorageMock) FindPlacesByCreator(
	ctx context.Context,
	userID string,
	transaction storage.Transaction,
) ([]*models.Place, error) {
	args := m.Called(ctx, userID, transaction)
	places, _ := args.Get(0).([]*models.Place)
	return places, args.Error(1)
}

func (m *StorageMock) InsertPlace(ctx context.Context, place *models.Place, transaction storage.Transaction) (string, error) {
	args := m.Called(ctx, place, transaction)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) UpdatePlace(ctx context.Context, place *models.Place, transaction storage.Transaction) error {
	args := m.Called(ctx, place, transaction)
	return args.Error(0)
}

func (m *StorageMock) DeletePlace(ctx context.Context, placeID string, transaction storage.Transaction) error {
	args := m.Called(ctx, placeID, transaction)
	return args.Error(0)
}
