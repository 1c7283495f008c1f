// Package app initializes and runs the places API. It configures logging,
// storage, credentials and routing, and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patric-chuzhbe/yourplaces/internal/auth"
	"github.com/patric-chuzhbe/yourplaces/internal/config"
	"github.com/patric-chuzhbe/yourplaces/internal/db/memorystorage"
	"github.com/patric-chuzhbe/yourplaces/internal/db/mongodb"
	"github.com/patric-chuzhbe/yourplaces/internal/db/postgresdb"
	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/filestore"
	"github.com/patric-chuzhbe/yourplaces/internal/logger"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
	"github.com/patric-chuzhbe/yourplaces/internal/router"
	"github.com/patric-chuzhbe/yourplaces/internal/service"
)

const shutdownTimeout = 10 * time.Second

// App holds the configuration, storage backend and HTTP handler of the service.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	httpHandler http.Handler
}

type InitOption func(*initOptions)

type initOptions struct {
	configOptions []config.InitOption
}

// WithConfigOptions forwards options to config.New.
func WithConfigOptions(opts ...config.InitOption) InitOption {
	return func(options *initOptions) {
		options.configOptions = append(options.configOptions, opts...)
	}
}

// New loads the configuration, initializes the logger, opens the storage
// selected by the configuration and builds the router.
func New(optionsProto ...InitOption) (*App, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var err error
	app := &App{}

	app.cfg, err = config.New(options.configOptions...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	files, err := filestore.New(app.cfg.UploadsDir)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	credentials := auth.NewCredentials(app.cfg.Secret, auth.WithTokenTTL(app.cfg.TokenTTL))

	app.httpHandler = router.New(
		service.New(app.db, files, credentials),
		files,
		credentials,
	).Handler()

	return app, nil
}

// Handler returns the HTTP handler of the application.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("server running", "RunAddr", a.cfg.RunAddr, "storage", storageName(a.cfg.StorageType()))

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		_ = a.db.Close()
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func storageName(storageType int) string {
	switch storageType {
	case models.StorageTypeMongo:
		return "mongodb"
	case models.StorageTypePostgresql:
		return "postgresql"
	case models.StorageTypeMemory:
		return "memory"
	}
	return "unknown"
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType() {
	case models.StorageTypeMongo:
		return mongodb.New(
			context.Background(),
			cfg.MongoURI,
			cfg.MongoDatabase,
			cfg.DBConnectionTimeout,
			mongodb.WithTransactionTimeout(cfg.TransactionTimeout),
		)

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
			postgresdb.WithTransactionTimeout(cfg.TransactionTimeout),
		)

	case models.StorageTypeMemory:
		return memorystorage.New(memorystorage.WithTransactionTimeout(cfg.TransactionTimeout))
	}

	return nil, errors.New("unknown storage type")
}
