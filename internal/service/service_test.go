package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/db/memorystorage"
	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

const testSecret = "supersecret_dont_share"

type fakeFiles struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (f *fakeFiles) Release(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, path)
	return f.err
}

func (f *fakeFiles) Released() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

// failingSaveStore is a memory store whose SaveUser always fails.
type failingSaveStore struct {
	*memorystorage.MemoryStorage
	err error
}

func (f *failingSaveStore) SaveUser(context.Context, *models.User, storage.Transaction) error {
	return f.err
}

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(defaultMaxRetries, retry.NewConstant(time.Millisecond))
}

func newTestCredentials() *auth.Credentials {
	return auth.NewCredentials(testSecret, auth.WithHashCost(bcrypt.MinCost))
}

type testEnv struct {
	db          *memorystorage.MemoryStorage
	files       *fakeFiles
	credentials *auth.Credentials
	service     *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := memorystorage.New(memorystorage.WithTransactionTimeout(time.Second))
	require.NoError(t, err)

	env := &testEnv{
		db:          db,
		files:       &fakeFiles{},
		credentials: newTestCredentials(),
	}
	env.service = New(env.db, env.files, env.credentials, WithRetryBackoff(fastBackoff))

	return env
}

func (e *testEnv) addUser(t *testing.T, name, email string) string {
	t.Helper()
	userID, err := e.db.InsertUser(
		context.Background(),
		&models.User{Name: name, Email: email, Password: "hash", Places: []string{}},
		nil,
	)
	require.NoError(t, err)
	return userID
}

var errBoom = errors.New("boom")

func empireStateBuilding() models.CreatePlaceRequest {
	return models.CreatePlaceRequest{
		Title:       "Empire State Building",
		Description: "One of the most famous sky scrapers in the world!",
		Address:     "20 W 34th St, New York, NY 10001",
		Lat:         40.7484474,
		Lng:         -73.9871516,
	}
}
