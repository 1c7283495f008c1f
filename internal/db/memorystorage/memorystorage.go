// Package memorystorage is an in-process implementation of the entity store.
//
// Transactions are serialized: only one may be open at a time, so writes to
// the same user can never interleave. Writes made inside a transaction are
// staged in the transaction and become visible to other readers only on
// commit; rollback simply discards them.
package memorystorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

const defaultTransactionTimeout = 5 * time.Second

// MemoryStorage keeps users and places in maps guarded by a RWMutex.
type MemoryStorage struct {
	mu     sync.RWMutex
	users  map[string]*models.User
	places map[string]*models.Place
	emails map[string]string

	txSlot             chan struct{}
	transactionTimeout time.Duration
}

type transaction struct {
	owner         *MemoryStorage
	ctx           context.Context
	cancel        context.CancelFunc
	users         map[string]*models.User
	places        map[string]*models.Place
	deletedPlaces map[string]struct{}
	done          bool
}

func (t *transaction) Done() bool {
	return t.done
}

// InitOption configures a MemoryStorage.
type InitOption func(*MemoryStorage)

// WithTransactionTimeout bounds how long a transaction may stay open,
// including the time spent waiting for another transaction to finish.
func WithTransactionTimeout(timeout time.Duration) InitOption {
	return func(s *MemoryStorage) {
		if timeout > 0 {
			s.transactionTimeout = timeout
		}
	}
}

func New(optionsProto ...InitOption) (*MemoryStorage, error) {
	s := &MemoryStorage{
		users:              map[string]*models.User{},
		places:             map[string]*models.Place{},
		emails:             map[string]string{},
		txSlot:             make(chan struct{}, 1),
		transactionTimeout: defaultTransactionTimeout,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s, nil
}

// BeginTransaction waits for any other open transaction to finish and opens a new one.
func (s *MemoryStorage) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.transactionTimeout)

	select {
	case s.txSlot <- struct{}{}:
	case <-txCtx.Done():
		cancel()
		return nil, fmt.Errorf("in internal/db/memorystorage/memorystorage.go/BeginTransaction(): %w", txCtx.Err())
	}

	return &transaction{
		owner:         s,
		ctx:           txCtx,
		cancel:        cancel,
		users:         map[string]*models.User{},
		places:        map[string]*models.Place{},
		deletedPlaces: map[string]struct{}{},
	}, nil
}

// CommitTransaction publishes the staged writes. A transaction whose context
// has expired or been cancelled is rolled back instead.
func (s *MemoryStorage) CommitTransaction(t storage.Transaction) error {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return err
	}
	if tx == nil {
		return storage.ErrForeignTransaction
	}
	defer s.finish(tx)

	if err := tx.ctx.Err(); err != nil {
		return fmt.Errorf("in internal/db/memorystorage/memorystorage.go/CommitTransaction(): %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range tx.deletedPlaces {
		delete(s.places, id)
	}
	for id, place := range tx.places {
		s.places[id] = place
	}
	for id, usr := range tx.users {
		s.putUserLocked(id, usr)
	}

	return nil
}

// RollbackTransaction discards the staged writes.
func (s *MemoryStorage) RollbackTransaction(t storage.Transaction) error {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return err
	}
	if tx == nil {
		return storage.ErrForeignTransaction
	}
	s.finish(tx)

	return nil
}

func (s *MemoryStorage) finish(tx *transaction) {
	tx.done = true
	tx.cancel()
	<-s.txSlot
}

func (s *MemoryStorage) resolveTransaction(t storage.Transaction) (*transaction, error) {
	if t == nil {
		return nil, nil
	}
	tx, ok := t.(*transaction)
	if !ok || tx == nil || tx.owner != s {
		return nil, storage.ErrForeignTransaction
	}
	if tx.done {
		return nil, storage.ErrTransactionDone
	}

	return tx, nil
}

func (s *MemoryStorage) putUserLocked(id string, usr *models.User) {
	if previous, ok := s.users[id]; ok && previous.Email != usr.Email {
		delete(s.emails, previous.Email)
	}
	s.users[id] = usr
	s.emails[usr.Email] = id
}

func (s *MemoryStorage) lookupUser(userID string, tx *transaction) (*models.User, bool) {
	if tx != nil {
		if usr, ok := tx.users[userID]; ok {
			return usr.Clone(), true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	usr, ok := s.users[userID]

	return usr.Clone(), ok
}

func (s *MemoryStorage) lookupPlace(placeID string, tx *transaction) (*models.Place, bool) {
	if tx != nil {
		if _, deleted := tx.deletedPlaces[placeID]; deleted {
			return nil, false
		}
		if place, ok := tx.places[placeID]; ok {
			return place.Clone(), true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	place, ok := s.places[placeID]

	return place.Clone(), ok
}

func (s *MemoryStorage) FindUserByID(ctx context.Context, userID string, t storage.Transaction) (*models.User, error) {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return nil, err
	}

	usr, ok := s.lookupUser(userID, tx)
	if !ok {
		return nil, storage.ErrNotFound
	}

	return usr, nil
}

func (s *MemoryStorage) FindUserByEmail(ctx context.Context, email string, t storage.Transaction) (*models.User, error) {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return nil, err
	}

	if tx != nil {
		for _, usr := range tx.users {
			if usr.Email == email {
				return usr.Clone(), nil
			}
		}
	}

	s.mu.RLock()
	userID, ok := s.emails[email]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}

	return s.FindUserByID(ctx, userID, t)
}

// ListUsers returns every committed user ordered by name.
func (s *MemoryStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	result := make([]*models.User, 0, len(s.users))
	for _, usr := range s.users {
		result = append(result, usr.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})

	return result, nil
}

func (s *MemoryStorage) InsertUser(ctx context.Context, usr *models.User, t storage.Transaction) (string, error) {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return "", err
	}

	if _, err := s.FindUserByEmail(ctx, usr.Email, t); err == nil {
		return "", storage.ErrDuplicate
	}

	created := usr.Clone()
	created.ID = uuid.New().String()
	if created.Places == nil {
		created.Places = []string{}
	}

	if tx != nil {
		tx.users[created.ID] = created
		return created.ID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[created.Email]; taken {
		return "", storage.ErrDuplicate
	}
	s.putUserLocked(created.ID, created)

	return created.ID, nil
}

func (s *MemoryStorage) SaveUser(ctx context.Context, usr *models.User, t storage.Transaction) error {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return err
	}

	if _, ok := s.lookupUser(usr.ID, tx); !ok {
		return storage.ErrNotFound
	}

	if tx != nil {
		tx.users[usr.ID] = usr.Clone()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putUserLocked(usr.ID, usr.Clone())

	return nil
}

func (s *MemoryStorage) FindPlaceByID(
	ctx context.Context,
	placeID string,
	withCreator bool,
	t storage.Transaction,
) (*models.Place, error) {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return nil, err
	}

	place, ok := s.lookupPlace(placeID, tx)
	if !ok {
		return nil, storage.ErrNotFound
	}

	if withCreator {
		creator, ok := s.lookupUser(place.Creator, tx)
		if !ok {
			return nil, fmt.Errorf("creator %q of place %q: %w", place.Creator, placeID, storage.ErrNotFound)
		}
		place.CreatorUser = creator
	}

	return place, nil
}

// FindPlacesByIDs returns the committed places in the order of placeIDs,
// skipping ids that do not exist.
func (s *MemoryStorage) FindPlacesByIDs(ctx context.Context, placeIDs []string) ([]*models.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Place, 0, len(placeIDs))
	for _, id := range placeIDs {
		if place, ok := s.places[id]; ok {
			result = append(result, place.Clone())
		}
	}

	return result, nil
}

func (s *MemoryStorage) FindPlacesByCreator(ctx context.Context, userID string, t storage.Transaction) ([]*models.Place, error) {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return nil, err
	}

	byID := map[string]*models.Place{}

	s.mu.RLock()
	for id, place := range s.places {
		if place.Creator == userID {
			byID[id] = place.Clone()
		}
	}
	s.mu.RUnlock()

	if tx != nil {
		for id := range tx.deletedPlaces {
			delete(byID, id)
		}
		for id, place := range tx.places {
			if place.Creator == userID {
				byID[id] = place.Clone()
			} else {
				delete(byID, id)
			}
		}
	}

	result := make([]*models.Place, 0, len(byID))
	for _, place := range byID {
		result = append(result, place)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// InsertPlace stores a new place. The creator must reference an existing user.
func (s *MemoryStorage) InsertPlace(ctx context.Context, place *models.Place, t storage.Transaction) (string, error) {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return "", err
	}

	if _, ok := s.lookupUser(place.Creator, tx); place.Creator == "" || !ok {
		return "", fmt.Errorf("creator %q: %w", place.Creator, storage.ErrNotFound)
	}

	created := place.Clone()
	created.ID = uuid.New().String()
	created.CreatorUser = nil

	if tx != nil {
		tx.places[created.ID] = created
		return created.ID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[created.ID] = created

	return created.ID, nil
}

func (s *MemoryStorage) UpdatePlace(ctx context.Context, place *models.Place, t storage.Transaction) error {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return err
	}

	if _, ok := s.lookupPlace(place.ID, tx); !ok {
		return storage.ErrNotFound
	}

	updated := place.Clone()
	updated.CreatorUser = nil

	if tx != nil {
		tx.places[updated.ID] = updated
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.places[updated.ID]; !ok {
		return storage.ErrNotFound
	}
	s.places[updated.ID] = updated

	return nil
}

func (s *MemoryStorage) DeletePlace(ctx context.Context, placeID string, t storage.Transaction) error {
	tx, err := s.resolveTransaction(t)
	if err != nil {
		return err
	}

	if _, ok := s.lookupPlace(placeID, tx); !ok {
		return storage.ErrNotFound
	}

	if tx != nil {
		delete(tx.places, placeID)
		tx.deletedPlaces[placeID] = struct{}{}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.places, placeID)

	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
