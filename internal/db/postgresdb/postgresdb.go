// Package postgresdb provides a PostgreSQL-based implementation of the entity store.
// Users and places live in separate tables; the user's place set is stored in
// the users.places array column and kept in step with places.creator by the
// service layer inside transactions.
package postgresdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

const defaultTransactionTimeout = 5 * time.Second

// PostgresDB is a PostgreSQL-backed entity store.
type PostgresDB struct {
	database           *sql.DB
	connectionTimeout  time.Duration
	transactionTimeout time.Duration
}

type transaction struct {
	owner  *PostgresDB
	tx     *sql.Tx
	cancel context.CancelFunc
	done   bool
}

func (t *transaction) Done() bool {
	return t.done
}

type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type initOptions struct {
	DBPreReset         bool
	TransactionTimeout time.Duration
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables dropping all tables before migration.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// WithTransactionTimeout bounds the lifetime of every transaction.
func WithTransactionTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		if timeout > 0 {
			options.TransactionTimeout = timeout
		}
	}
}

// New opens the database, runs the goose migrations found in migrationsDir
// and returns a ready PostgresDB.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset:         false,
		TransactionTimeout: defaultTransactionTimeout,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:           database,
		connectionTimeout:  connectionTimeout,
		transactionTimeout: options.TransactionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// BeginTransaction starts a transaction bounded by the configured timeout.
// Cancelling ctx rolls the transaction back.
func (db *PostgresDB) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	txCtx, cancel := context.WithTimeout(ctx, db.transactionTimeout)

	tx, err := db.database.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		cancel()
		return nil, translateError(err)
	}

	return &transaction{owner: db, tx: tx, cancel: cancel}, nil
}

// CommitTransaction commits the given transaction.
func (db *PostgresDB) CommitTransaction(t storage.Transaction) (err error) {
	tx, err := db.resolveTransaction(t)
	if err != nil {
		return err
	}
	if tx == nil {
		return storage.ErrForeignTransaction
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()
	defer tx.cancel()

	tx.done = true

	return translateError(tx.tx.Commit())
}

// RollbackTransaction rolls back the given transaction.
func (db *PostgresDB) RollbackTransaction(t storage.Transaction) error {
	tx, err := db.resolveTransaction(t)
	if err != nil {
		return err
	}
	if tx == nil {
		return storage.ErrForeignTransaction
	}
	defer tx.cancel()

	tx.done = true
	err = tx.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

func (db *PostgresDB) resolveTransaction(t storage.Transaction) (*transaction, error) {
	if t == nil {
		return nil, nil
	}
	tx, ok := t.(*transaction)
	if !ok || tx == nil || tx.owner != db {
		return nil, storage.ErrForeignTransaction
	}
	if tx.done {
		return nil, storage.ErrTransactionDone
	}

	return tx, nil
}

func (db *PostgresDB) conn(t storage.Transaction) (queryExecutor, bool, error) {
	tx, err := db.resolveTransaction(t)
	if err != nil {
		return nil, false, err
	}
	if tx == nil {
		return db.database, false, nil
	}

	return tx.tx, true, nil
}

const userColumns = `id, name, email, password, image, to_json(places)`

func scanUser(row rowScanner) (*models.User, error) {
	usr := &models.User{}
	var places []byte
	if err := row.Scan(&usr.ID, &usr.Name, &usr.Email, &usr.Password, &usr.Image, &places); err != nil {
		return nil, translateError(err)
	}
	if err := json.Unmarshal(places, &usr.Places); err != nil {
		return nil, err
	}
	if usr.Places == nil {
		usr.Places = []string{}
	}

	return usr, nil
}

// FindUserByID fetches a user. Inside a transaction the row is locked
// until the transaction ends, which serializes concurrent place-set updates.
func (db *PostgresDB) FindUserByID(ctx context.Context, userID string, t storage.Transaction) (*models.User, error) {
	database, inTransaction, err := db.conn(t)
	if err != nil {
		return nil, err
	}
	if !isUUID(userID) {
		return nil, storage.ErrNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if inTransaction {
		query += ` FOR UPDATE`
	}

	return scanUser(database.QueryRowContext(ctx, query, userID))
}

func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string, t storage.Transaction) (*models.User, error) {
	database, _, err := db.conn(t)
	if err != nil {
		return nil, err
	}

	return scanUser(database.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
}

func (db *PostgresDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.database.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	result := []*models.User{}
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}

	return result, nil
}

func (db *PostgresDB) InsertUser(ctx context.Context, usr *models.User, t storage.Transaction) (string, error) {
	database, _, err := db.conn(t)
	if err != nil {
		return "", err
	}

	places := usr.Places
	if places == nil {
		places = []string{}
	}

	var userID string
	err = database.QueryRowContext(
		ctx,
		`
			INSERT INTO users (name, email, password, image, places)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
		`,
		usr.Name,
		usr.Email,
		usr.Password,
		usr.Image,
		places,
	).Scan(&userID)
	if err != nil {
		return "", translateError(err)
	}

	return userID, nil
}

func (db *PostgresDB) SaveUser(ctx context.Context, usr *models.User, t storage.Transaction) error {
	database, _, err := db.conn(t)
	if err != nil {
		return err
	}
	if !isUUID(usr.ID) {
		return storage.ErrNotFound
	}

	places := usr.Places
	if places == nil {
		places = []string{}
	}

	result, err := database.ExecContext(
		ctx,
		`
			UPDATE users
				SET name = $2, email = $3, password = $4, image = $5, places = $6
				WHERE id = $1
		`,
		usr.ID,
		usr.Name,
		usr.Email,
		usr.Password,
		usr.Image,
		places,
	)

	return checkAffected(result, err)
}

const placeColumns = `id, title, description, image, lat, lng, address, creator`

func scanPlace(row rowScanner) (*models.Place, error) {
	place := &models.Place{}
	err := row.Scan(
		&place.ID,
		&place.Title,
		&place.Description,
		&place.Image,
		&place.Location.Lat,
		&place.Location.Lng,
		&place.Address,
		&place.Creator,
	)
	if err != nil {
		return nil, translateError(err)
	}

	return place, nil
}

func (db *PostgresDB) FindPlaceByID(
	ctx context.Context,
	placeID string,
	withCreator bool,
	t storage.Transaction,
) (*models.Place, error) {
	database, _, err := db.conn(t)
	if err != nil {
		return nil, err
	}
	if !isUUID(placeID) {
		return nil, storage.ErrNotFound
	}

	place, err := scanPlace(database.QueryRowContext(
		ctx,
		`SELECT `+placeColumns+` FROM places WHERE id = $1`,
		placeID,
	))
	if err != nil {
		return nil, err
	}

	if withCreator {
		place.CreatorUser, err = db.FindUserByID(ctx, place.Creator, t)
		if err != nil {
			return nil, fmt.Errorf("creator %q of place %q: %w", place.Creator, placeID, err)
		}
	}

	return place, nil
}

// FindPlacesByIDs returns the places in the order of placeIDs, skipping missing ones.
func (db *PostgresDB) FindPlacesByIDs(ctx context.Context, placeIDs []string) ([]*models.Place, error) {
	validIDs := make([]string, 0, len(placeIDs))
	for _, id := range placeIDs {
		if isUUID(id) {
			validIDs = append(validIDs, id)
		}
	}
	if len(validIDs) == 0 {
		return []*models.Place{}, nil
	}

	rows, err := db.database.QueryContext(
		ctx,
		`SELECT `+placeColumns+` FROM places WHERE id = ANY($1::text[]::uuid[])`,
		validIDs,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	byID := map[string]*models.Place{}
	for rows.Next() {
		place, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		byID[place.ID] = place
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}

	result := make([]*models.Place, 0, len(byID))
	for _, id := range placeIDs {
		if place, ok := byID[id]; ok {
			result = append(result, place)
		}
	}

	return result, nil
}

func (db *PostgresDB) FindPlacesByCreator(ctx context.Context, userID string, t storage.Transaction) ([]*models.Place, error) {
	database, _, err := db.conn(t)
	if err != nil {
		return nil, err
	}
	if !isUUID(userID) {
		return []*models.Place{}, nil
	}

	rows, err := database.QueryContext(
		ctx,
		`SELECT `+placeColumns+` FROM places WHERE creator = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	result := []*models.Place{}
	for rows.Next() {
		place, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, place)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}

	return result, nil
}

func (db *PostgresDB) InsertPlace(ctx context.Context, place *models.Place, t storage.Transaction) (string, error) {
	database, _, err := db.conn(t)
	if err != nil {
		return "", err
	}
	if !isUUID(place.Creator) {
		return "", fmt.Errorf("creator %q: %w", place.Creator, storage.ErrNotFound)
	}

	var placeID string
	err = database.QueryRowContext(
		ctx,
		`
			INSERT INTO places (title, description, image, lat, lng, address, creator)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
		`,
		place.Title,
		place.Description,
		place.Image,
		place.Location.Lat,
		place.Location.Lng,
		place.Address,
		place.Creator,
	).Scan(&placeID)
	if err != nil {
		return "", translateError(err)
	}

	return placeID, nil
}

func (db *PostgresDB) UpdatePlace(ctx context.Context, place *models.Place, t storage.Transaction) error {
	database, _, err := db.conn(t)
	if err != nil {
		return err
	}
	if !isUUID(place.ID) {
		return storage.ErrNotFound
	}

	result, err := database.ExecContext(
		ctx,
		`
			UPDATE places
				SET title = $2, description = $3, image = $4, lat = $5, lng = $6, address = $7
				WHERE id = $1
		`,
		place.ID,
		place.Title,
		place.Description,
		place.Image,
		place.Location.Lat,
		place.Location.Lng,
		place.Address,
	)

	return checkAffected(result, err)
}

func (db *PostgresDB) DeletePlace(ctx context.Context, placeID string, t storage.Transaction) error {
	database, _, err := db.conn(t)
	if err != nil {
		return err
	}
	if !isUUID(placeID) {
		return storage.ErrNotFound
	}

	result, err := database.ExecContext(ctx, `DELETE FROM places WHERE id = $1`, placeID)

	return checkAffected(result, err)
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func checkAffected(result sql.Result, err error) error {
	if err != nil {
		return translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// PostgreSQL error codes mapped onto storage errors.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeInvalidTextRepr      = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
		case codeForeignKeyViolation, codeInvalidTextRepr:
			return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		}
	}

	return err
}
