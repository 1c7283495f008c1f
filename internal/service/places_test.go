package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
	"github.com/patric-chuzhbe/yourplaces/internal/db/memorystorage"
	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/mockstorage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

func TestCreatePlaceLinksCreator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "Max", "max@example.com")

	place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "uploads/images/a.png", userID)
	require.NoError(t, err)
	assert.NotEmpty(t, place.ID)
	assert.Equal(t, userID, place.Creator)
	assert.Equal(t, "uploads/images/a.png", place.Image)
	assert.Equal(t, models.Location{Lat: 40.7484474, Lng: -73.9871516}, place.Location)

	usr, err := env.db.FindUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.True(t, usr.HasPlace(place.ID))

	places, err := env.service.GetPlacesByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, place.ID, places[0].ID)

	found, err := env.service.GetPlaceByID(ctx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, place.Title, found.Title)
}

func TestCreatePlaceWithoutCoordinatesUsesDefaultLocation(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t, "Max", "max@example.com")

	request := empireStateBuilding()
	request.Lat, request.Lng = 0, 0

	place, err := env.service.CreatePlace(context.Background(), request, "", userID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLocation, place.Location)
}

func TestCreatePlaceUnknownCreator(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreatePlace(context.Background(), empireStateBuilding(), "", "u-unknown")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, 404, apperr.From(err).Code)
}

func TestCreatePlaceIsAtomicWhenOwnerUpdateFails(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	ctx := context.Background()
	userID, err := db.InsertUser(ctx, &models.User{Name: "Max", Email: "max@example.com", Password: "hash"}, nil)
	require.NoError(t, err)

	svc := New(&failingSaveStore{MemoryStorage: db, err: errBoom}, &fakeFiles{}, newTestCredentials(), WithRetryBackoff(fastBackoff))

	_, err = svc.CreatePlace(ctx, empireStateBuilding(), "", userID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Equal(t, 500, apperr.From(err).Code)

	orphans, err := db.FindPlacesByCreator(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, orphans, "the inserted place must not survive the failed transaction")

	usr, err := db.FindUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, usr.Places)
}

func TestGetPlaceErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.GetPlaceByID(ctx, "p-unknown")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = env.service.GetPlacesByUserID(ctx, "u-unknown")
	require.Error(t, err)
	assert.Equal(t, "Could not find places for the provided user id.", apperr.From(err).Message)

	userID := env.addUser(t, "Max", "max@example.com")
	places, err := env.service.GetPlacesByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestUpdatePlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ownerID := env.addUser(t, "Max", "max@example.com")
	strangerID := env.addUser(t, "Manu", "manu@example.com")

	place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "", ownerID)
	require.NoError(t, err)

	update := models.UpdatePlaceRequest{Title: "Empire State", Description: "Still very tall."}

	_, err = env.service.UpdatePlace(ctx, place.ID, update, strangerID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, 401, apperr.From(err).Code)

	unchanged, err := env.service.GetPlaceByID(ctx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, "Empire State Building", unchanged.Title)

	_, err = env.service.UpdatePlace(ctx, "p-unknown", update, strangerID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err), "existence is checked before ownership")

	updated, err := env.service.UpdatePlace(ctx, place.ID, update, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "Empire State", updated.Title)
	assert.Equal(t, "Still very tall.", updated.Description)
	assert.Equal(t, place.Address, updated.Address)
	assert.Equal(t, ownerID, updated.Creator)
}

func TestDeletePlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ownerID := env.addUser(t, "Max", "max@example.com")

	place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "uploads/images/a.png", ownerID)
	require.NoError(t, err)

	require.NoError(t, env.service.DeletePlace(ctx, place.ID, ownerID))

	_, err = env.service.GetPlaceByID(ctx, place.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	usr, err := env.db.FindUserByID(ctx, ownerID, nil)
	require.NoError(t, err)
	assert.False(t, usr.HasPlace(place.ID))
	assert.Equal(t, []string{"uploads/images/a.png"}, env.files.Released())

	err = env.service.DeletePlace(ctx, place.ID, ownerID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeletePlaceIgnoresReleaseFailure(t *testing.T) {
	env := newTestEnv(t)
	env.files.err = errBoom
	ctx := context.Background()
	ownerID := env.addUser(t, "Max", "max@example.com")

	place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "uploads/images/a.png", ownerID)
	require.NoError(t, err)

	assert.NoError(t, env.service.DeletePlace(ctx, place.ID, ownerID))
}

func TestDeletePlaceIsAtomicWhenOwnerUpdateFails(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	ctx := context.Background()
	files := &fakeFiles{}

	healthy := New(db, files, newTestCredentials())
	userID, err := db.InsertUser(ctx, &models.User{Name: "Max", Email: "max@example.com", Password: "hash"}, nil)
	require.NoError(t, err)
	place, err := healthy.CreatePlace(ctx, empireStateBuilding(), "uploads/images/a.png", userID)
	require.NoError(t, err)

	broken := New(&failingSaveStore{MemoryStorage: db, err: errBoom}, files, newTestCredentials(), WithRetryBackoff(fastBackoff))
	err = broken.DeletePlace(ctx, place.ID, userID)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

	_, err = db.FindPlaceByID(ctx, place.ID, false, nil)
	assert.NoError(t, err, "the place must survive the failed transaction")
	usr, err := db.FindUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.True(t, usr.HasPlace(place.ID))
	assert.Empty(t, files.Released(), "the image must not be released when nothing was deleted")
}

func TestOwnershipScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u1 := env.addUser(t, "Max", "max@example.com")
	u2 := env.addUser(t, "Manu", "manu@example.com")

	place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "uploads/images/a.png", u1)
	require.NoError(t, err)

	err = env.service.DeletePlace(ctx, place.ID, u2)
	require.Error(t, err)
	assert.Equal(t, 401, apperr.From(err).Code)

	_, err = env.service.GetPlaceByID(ctx, place.ID)
	require.NoError(t, err, "the place remains after a foreign delete attempt")
	usr, err := env.db.FindUserByID(ctx, u1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{place.ID}, usr.Places)

	require.NoError(t, env.service.DeletePlace(ctx, place.ID, u1))

	usr, err = env.db.FindUserByID(ctx, u1, nil)
	require.NoError(t, err)
	assert.Empty(t, usr.Places)
}

func TestReconcileUserPlaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "Max", "max@example.com")

	place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "", userID)
	require.NoError(t, err)

	usr, err := env.db.FindUserByID(ctx, userID, nil)
	require.NoError(t, err)
	usr.Places = []string{"p-stale"}
	require.NoError(t, env.db.SaveUser(ctx, usr, nil))

	reconciled, err := env.service.ReconcileUserPlaces(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{place.ID}, reconciled.Places)

	usr, err = env.db.FindUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{place.ID}, usr.Places)

	_, err = env.service.ReconcileUserPlaces(ctx, "u-unknown")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func newMockedService(db *mockstorage.StorageMock) *Service {
	return New(db, &fakeFiles{}, newTestCredentials(), WithRetryBackoff(fastBackoff))
}

func mockedOwner(db *mockstorage.StorageMock) {
	owner := &models.User{ID: "u1", Name: "Max", Email: "max@example.com", Places: []string{}}
	db.OnFindUserByID = func(context.Context, string, storage.Transaction) (*models.User, error) {
		return owner.Clone(), nil
	}
}

func TestCreatePlaceRollsBackOnSaveFailure(t *testing.T) {
	db := &mockstorage.StorageMock{}
	tx := &mockstorage.Transaction{}
	mockedOwner(db)
	db.On("BeginTransaction", mock.Anything).Return(tx, nil)
	db.On("InsertPlace", mock.Anything, mock.Anything, tx).Return("p1", nil)
	db.On("SaveUser", mock.Anything, mock.Anything, tx).Return(errBoom)
	db.On("RollbackTransaction", tx).Return(nil)

	_, err := newMockedService(db).CreatePlace(context.Background(), empireStateBuilding(), "", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	db.AssertCalled(t, "RollbackTransaction", tx)
	db.AssertNotCalled(t, "CommitTransaction", tx)
	db.AssertNumberOfCalls(t, "BeginTransaction", 1)
}

func TestCreatePlaceRetriesOnConflict(t *testing.T) {
	db := &mockstorage.StorageMock{}
	tx := &mockstorage.Transaction{}
	mockedOwner(db)
	db.On("BeginTransaction", mock.Anything).Return(tx, nil)
	db.On("InsertPlace", mock.Anything, mock.Anything, tx).Return("p1", nil)
	db.On("SaveUser", mock.Anything, mock.MatchedBy(func(usr *models.User) bool {
		return usr.HasPlace("p1")
	}), tx).Return(nil)
	db.On("CommitTransaction", tx).Return(storage.ErrConflict).Once()
	db.On("CommitTransaction", tx).Return(nil).Once()
	db.On("RollbackTransaction", tx).Return(storage.ErrTransactionDone)

	place, err := newMockedService(db).CreatePlace(context.Background(), empireStateBuilding(), "", "u1")
	require.NoError(t, err)
	assert.Equal(t, "p1", place.ID)

	db.AssertNumberOfCalls(t, "BeginTransaction", 2)
	db.AssertNumberOfCalls(t, "RollbackTransaction", 1)
}

func TestCreatePlaceGivesUpAfterRepeatedConflicts(t *testing.T) {
	db := &mockstorage.StorageMock{}
	tx := &mockstorage.Transaction{}
	mockedOwner(db)
	db.On("BeginTransaction", mock.Anything).Return(tx, nil)
	db.On("InsertPlace", mock.Anything, mock.Anything, tx).Return("p1", nil)
	db.On("SaveUser", mock.Anything, mock.Anything, tx).Return(nil)
	db.On("CommitTransaction", tx).Return(storage.ErrConflict)
	db.On("RollbackTransaction", tx).Return(nil)

	_, err := newMockedService(db).CreatePlace(context.Background(), empireStateBuilding(), "", "u1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.ErrorIs(t, err, storage.ErrConflict)

	db.AssertNumberOfCalls(t, "BeginTransaction", defaultMaxRetries+1)
}

func TestDeletePlaceChecksExistenceBeforeOwnership(t *testing.T) {
	db := &mockstorage.StorageMock{}
	db.On("FindPlaceByID", mock.Anything, "p1", true, nil).Return(nil, storage.ErrNotFound)

	err := newMockedService(db).DeletePlace(context.Background(), "p1", "u2")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	db.AssertNotCalled(t, "BeginTransaction", mock.Anything)
}

func TestDeletePlaceLookupFailureShortCircuits(t *testing.T) {
	db := &mockstorage.StorageMock{}
	db.On("FindPlaceByID", mock.Anything, "p1", true, nil).Return(nil, errBoom)

	err := newMockedService(db).DeletePlace(context.Background(), "p1", "u1")
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	db.AssertNotCalled(t, "BeginTransaction", mock.Anything)
}

func TestDeletePlaceRemovedConcurrently(t *testing.T) {
	db := &mockstorage.StorageMock{}
	tx := &mockstorage.Transaction{}
	files := &fakeFiles{}

	db.On("FindPlaceByID", mock.Anything, "p1", true, nil).
		Return(&models.Place{ID: "p1", Creator: "u1", Image: "uploads/images/a.png"}, nil)
	db.On("BeginTransaction", mock.Anything).Return(tx, nil)
	db.On("DeletePlace", mock.Anything, "p1", tx).Return(storage.ErrNotFound)
	db.On("RollbackTransaction", tx).Return(nil)

	svc := New(db, files, newTestCredentials(), WithRetryBackoff(fastBackoff))
	err := svc.DeletePlace(context.Background(), "p1", "u1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, 404, apperr.From(err).Code)

	db.AssertNotCalled(t, "CommitTransaction", tx)
	db.AssertCalled(t, "RollbackTransaction", tx)
	assert.Empty(t, files.Released())
}

func TestConcurrentCreatePlaceKeepsEveryID(t *testing.T) {
	const workers = 50

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "Max", "max@example.com")

	var wg sync.WaitGroup
	ids := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			place, err := env.service.CreatePlace(ctx, empireStateBuilding(), "", userID)
			if err != nil {
				errs <- err
				return
			}
			ids <- place.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	created := make([]string, 0, workers)
	for id := range ids {
		created = append(created, id)
	}
	require.Len(t, created, workers)

	usr, err := env.db.FindUserByID(ctx, userID, nil)
	require.NoError(t, err)
	assert.Len(t, usr.Places, workers)
	assert.ElementsMatch(t, created, usr.Places)
}
