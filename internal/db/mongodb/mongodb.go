// Package mongodb provides a MongoDB-based implementation of the entity store.
//
// Users and places are separate collections. Atomicity across both is
// provided by multi-document session transactions, which require a replica
// set or sharded cluster. Concurrent transactions touching the same user
// document abort with a write conflict, reported as storage.ErrConflict so
// the caller can retry.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

const (
	usersCollection  = "users"
	placesCollection = "places"

	defaultTransactionTimeout = 5 * time.Second

	writeConflictCode = 112

	transientTransactionLabel = "TransientTransactionError"
	unknownCommitResultLabel  = "UnknownTransactionCommitResult"

	maxCommitRetries = 3
	commitRetryDelay = 20 * time.Millisecond
)

type MongoDB struct {
	client             *mongo.Client
	users              *mongo.Collection
	places             *mongo.Collection
	connectionTimeout  time.Duration
	transactionTimeout time.Duration
}

type transaction struct {
	owner      *MongoDB
	session    mongo.Session
	sessionCtx mongo.SessionContext
	cancel     context.CancelFunc
	done       bool
}

func (t *transaction) Done() bool {
	return t.done
}

type initOptions struct {
	TransactionTimeout time.Duration
	DropOnStart        bool
}

type InitOption func(*initOptions)

// WithTransactionTimeout bounds the lifetime of every transaction.
func WithTransactionTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		if timeout > 0 {
			options.TransactionTimeout = timeout
		}
	}
}

// WithDropOnStart drops both collections before the indexes are created.
// It is meant for test setups.
func WithDropOnStart(value bool) InitOption {
	return func(options *initOptions) {
		options.DropOnStart = value
	}
}

// New connects to MongoDB, makes sure the indexes exist and returns the store.
func New(
	ctx context.Context,
	uri string,
	databaseName string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*MongoDB, error) {
	opts := &initOptions{TransactionTimeout: defaultTransactionTimeout}
	for _, protoOption := range optionsProto {
		protoOption(opts)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `mongo.Connect()` calling: %w", err)
	}

	database := client.Database(databaseName)
	result := &MongoDB{
		client:             client,
		users:              database.Collection(usersCollection),
		places:             database.Collection(placesCollection),
		connectionTimeout:  connectionTimeout,
		transactionTimeout: opts.TransactionTimeout,
	}

	if opts.DropOnStart {
		if err := result.users.Drop(connectCtx); err != nil {
			return nil, err
		}
		if err := result.places.Drop(connectCtx); err != nil {
			return nil, err
		}
	}

	if err := result.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `result.ensureIndexes()` calling: %w", err)
	}

	return result, nil
}

func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = m.places.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "creator", Value: 1}},
	})

	return err
}

func (m *MongoDB) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	txCtx, cancel := context.WithTimeout(ctx, m.transactionTimeout)

	session, err := m.client.StartSession()
	if err != nil {
		cancel()
		return nil, err
	}

	err = session.StartTransaction(
		options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()),
	)
	if err != nil {
		session.EndSession(context.Background())
		cancel()
		return nil, err
	}

	return &transaction{
		owner:      m,
		session:    session,
		sessionCtx: mongo.NewSessionContext(txCtx, session),
		cancel:     cancel,
	}, nil
}

func (m *MongoDB) CommitTransaction(t storage.Transaction) error {
	tx, err := m.resolveTransaction(t)
	if err != nil {
		return err
	}
	if tx == nil {
		return storage.ErrForeignTransaction
	}
	defer m.finish(tx)

	return translateError(commitWithRetry(tx.sessionCtx, func() error {
		return tx.session.CommitTransaction(tx.sessionCtx)
	}))
}

// commitWithRetry re-sends commit while the server reports an unknown commit
// result. The transaction body is never rerun here since its writes may
// already be applied. A repeated commit is applied at most once.
func commitWithRetry(ctx context.Context, commit func() error) error {
	backoff := retry.WithMaxRetries(maxCommitRetries, retry.NewConstant(commitRetryDelay))

	return retry.Do(ctx, backoff, func(context.Context) error {
		err := commit()
		if hasErrorLabel(err, unknownCommitResultLabel) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func hasErrorLabel(err error, label string) bool {
	var labeled mongo.LabeledError
	return errors.As(err, &labeled) && labeled.HasErrorLabel(label)
}

func (m *MongoDB) RollbackTransaction(t storage.Transaction) error {
	tx, err := m.resolveTransaction(t)
	if err != nil {
		return err
	}
	if tx == nil {
		return storage.ErrForeignTransaction
	}
	defer m.finish(tx)

	return tx.session.AbortTransaction(context.Background())
}

func (m *MongoDB) finish(tx *transaction) {
	tx.done = true
	tx.session.EndSession(context.Background())
	tx.cancel()
}

func (m *MongoDB) resolveTransaction(t storage.Transaction) (*transaction, error) {
	if t == nil {
		return nil, nil
	}
	tx, ok := t.(*transaction)
	if !ok || tx == nil || tx.owner != m {
		return nil, storage.ErrForeignTransaction
	}
	if tx.done {
		return nil, storage.ErrTransactionDone
	}

	return tx, nil
}

// operationContext returns the session context when t is set, ctx otherwise.
func (m *MongoDB) operationContext(ctx context.Context, t storage.Transaction) (context.Context, error) {
	tx, err := m.resolveTransaction(t)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return ctx, nil
	}

	return tx.sessionCtx, nil
}

func (m *MongoDB) FindUserByID(ctx context.Context, userID string, t storage.Transaction) (*models.User, error) {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return nil, err
	}
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	return m.findUser(opCtx, bson.M{"_id": id})
}

func (m *MongoDB) FindUserByEmail(ctx context.Context, email string, t storage.Transaction) (*models.User, error) {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return nil, err
	}

	return m.findUser(opCtx, bson.M{"email": email})
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateError(err)
	}

	return doc.toModel(), nil
}

func (m *MongoDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	cursor, err := m.users.Find(
		ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, translateError(err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateError(err)
	}

	result := make([]*models.User, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toModel())
	}

	return result, nil
}

func (m *MongoDB) InsertUser(ctx context.Context, usr *models.User, t storage.Transaction) (string, error) {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return "", err
	}

	doc, err := userDocumentFromModel(usr)
	if err != nil {
		return "", err
	}
	doc.ID = primitive.NewObjectID()

	if _, err := m.users.InsertOne(opCtx, doc); err != nil {
		return "", translateError(err)
	}

	return doc.ID.Hex(), nil
}

func (m *MongoDB) SaveUser(ctx context.Context, usr *models.User, t storage.Transaction) error {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return err
	}

	doc, err := userDocumentFromModel(usr)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		return storage.ErrNotFound
	}

	result, err := m.users.ReplaceOne(opCtx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (m *MongoDB) FindPlaceByID(
	ctx context.Context,
	placeID string,
	withCreator bool,
	t storage.Transaction,
) (*models.Place, error) {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return nil, err
	}
	id, err := primitive.ObjectIDFromHex(placeID)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	var doc placeDocument
	if err := m.places.FindOne(opCtx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateError(err)
	}
	place := doc.toModel()

	if withCreator {
		place.CreatorUser, err = m.FindUserByID(ctx, place.Creator, t)
		if err != nil {
			return nil, fmt.Errorf("creator %q of place %q: %w", place.Creator, placeID, err)
		}
	}

	return place, nil
}

func (m *MongoDB) FindPlacesByIDs(ctx context.Context, placeIDs []string) ([]*models.Place, error) {
	ids := make([]primitive.ObjectID, 0, len(placeIDs))
	for _, placeID := range placeIDs {
		if id, err := primitive.ObjectIDFromHex(placeID); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []*models.Place{}, nil
	}

	docs, err := m.findPlaces(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Place, len(docs))
	for _, place := range docs {
		byID[place.ID] = place
	}
	result := make([]*models.Place, 0, len(byID))
	for _, placeID := range placeIDs {
		if place, ok := byID[placeID]; ok {
			result = append(result, place)
		}
	}

	return result, nil
}

func (m *MongoDB) FindPlacesByCreator(ctx context.Context, userID string, t storage.Transaction) ([]*models.Place, error) {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return nil, err
	}
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []*models.Place{}, nil
	}

	return m.findPlaces(opCtx, bson.M{"creator": id})
}

func (m *MongoDB) findPlaces(ctx context.Context, filter bson.M) ([]*models.Place, error) {
	cursor, err := m.places.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translateError(err)
	}

	var docs []placeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateError(err)
	}

	result := make([]*models.Place, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toModel())
	}

	return result, nil
}

// InsertPlace stores a new place. MongoDB has no foreign keys, so the creator
// is checked explicitly within the same session.
func (m *MongoDB) InsertPlace(ctx context.Context, place *models.Place, t storage.Transaction) (string, error) {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return "", err
	}

	doc, err := placeDocumentFromModel(place)
	if err != nil {
		return "", err
	}

	creators, err := m.users.CountDocuments(opCtx, bson.M{"_id": doc.Creator})
	if err != nil {
		return "", translateError(err)
	}
	if creators == 0 {
		return "", fmt.Errorf("creator %q: %w", place.Creator, storage.ErrNotFound)
	}

	doc.ID = primitive.NewObjectID()
	if _, err := m.places.InsertOne(opCtx, doc); err != nil {
		return "", translateError(err)
	}

	return doc.ID.Hex(), nil
}

// UpdatePlace overwrites the mutable fields of a place. The creator is never changed.
func (m *MongoDB) UpdatePlace(ctx context.Context, place *models.Place, t storage.Transaction) error {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return err
	}
	id, err := primitive.ObjectIDFromHex(place.ID)
	if err != nil {
		return storage.ErrNotFound
	}

	result, err := m.places.UpdateOne(opCtx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"title":       place.Title,
		"description": place.Description,
		"image":       place.Image,
		"location":    locationDocument{Lat: place.Location.Lat, Lng: place.Location.Lng},
		"address":     place.Address,
	}})
	if err != nil {
		return translateError(err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (m *MongoDB) DeletePlace(ctx context.Context, placeID string, t storage.Transaction) error {
	opCtx, err := m.operationContext(ctx, t)
	if err != nil {
		return err
	}
	id, err := primitive.ObjectIDFromHex(placeID)
	if err != nil {
		return storage.ErrNotFound
	}

	result, err := m.places.DeleteOne(opCtx, bson.M{"_id": id})
	if err != nil {
		return translateError(err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (m *MongoDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, m.connectionTimeout)
	defer cancel()

	return m.client.Ping(ctxWithTimeout, nil)
}

func (m *MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}

	// An unknown commit result is not a conflict: the commit may have landed.
	if hasErrorLabel(err, transientTransactionLabel) && !hasErrorLabel(err, unknownCommitResultLabel) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}

	var commandErr mongo.CommandError
	if errors.As(err, &commandErr) && commandErr.Code == writeConflictCode && !hasErrorLabel(err, unknownCommitResultLabel) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}

	return err
}
