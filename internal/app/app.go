// Package app initializes and runs the todolist service. It wires
// configuration, logging, storage, authentication and routing together
// and handles graceful shutdown.
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

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todolist/internal/auth"
	"github.com/patric-chuzhbe/todolist/internal/config"
	"github.com/patric-chuzhbe/todolist/internal/db/jsondb"
	"github.com/patric-chuzhbe/todolist/internal/db/memorystorage"
	"github.com/patric-chuzhbe/todolist/internal/db/mongodb"
	"github.com/patric-chuzhbe/todolist/internal/db/postgresdb"
	"github.com/patric-chuzhbe/todolist/internal/db/storage"
	"github.com/patric-chuzhbe/todolist/internal/flusher"
	"github.com/patric-chuzhbe/todolist/internal/hasher"
	"github.com/patric-chuzhbe/todolist/internal/ipchecker"
	"github.com/patric-chuzhbe/todolist/internal/logger"
	"github.com/patric-chuzhbe/todolist/internal/models"
	"github.com/patric-chuzhbe/todolist/internal/router"
	"github.com/patric-chuzhbe/todolist/internal/service"
	"github.com/patric-chuzhbe/todolist/internal/usercache"
)

const shutdownTimeout = 10 * time.Second

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// App holds the configuration, storage backend and HTTP handler of a running service.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	userCache   *usercache.UserCache
	httpHandler http.Handler
	stopFlusher context.CancelFunc
	flusher     *flusher.Flusher
}

// New loads the configuration, initializes the logger, opens the selected
// storage and builds the router.
func New(configOptions ...config.InitOption) (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New(configOptions...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	theAuth, err := auth.New(
		[]byte(app.cfg.SecretKey),
		app.cfg.TokenTTL,
		app.cfg.AuthCookieName,
		auth.WithSecureCookie(app.cfg.SecureCookie),
	)
	if err != nil {
		return nil, err
	}

	guard, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	app.startFlusher()

	serviceOptions := []service.InitOption{
		service.WithOwnershipChecks(app.cfg.OwnershipChecks),
	}
	if app.cfg.UserCacheTTL > 0 {
		app.userCache, err = usercache.New(app.cfg.UserCacheTTL)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		serviceOptions = append(serviceOptions, service.WithUserCache(app.userCache))
	}

	theService := service.New(
		app.db,
		hasher.New(app.cfg.HashCost()),
		theAuth,
		serviceOptions...,
	)

	app.httpHandler = router.New(
		theService,
		theAuth,
		guard,
		router.WithGzip(app.cfg.EnableGzip),
	).Handler()

	return app, nil
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr, "ownershipChecks", a.cfg.OwnershipChecks)

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

		return nil

	case err := <-serverErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Close releases the storage and the user cache and flushes the logger.
func (a *App) Close() error {
	var errs []error

	if a.stopFlusher != nil {
		a.stopFlusher()
		<-a.flusher.Done()
	}

	if a.userCache != nil {
		if err := a.userCache.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := logger.Sync(); err != nil {
		logger.Log.Debugln("Error calling the `logger.Sync()`: ", zap.Error(err))
	}

	return errors.Join(errs...)
}

func (a *App) startFlusher() {
	if a.cfg.FlushInterval <= 0 || getAvailableStorageType(a.cfg) != models.StorageTypeFile {
		return
	}

	fileDB, ok := a.db.(*jsondb.JSONDB)
	if !ok {
		return
	}

	var ctx context.Context
	ctx, a.stopFlusher = context.WithCancel(context.Background())
	a.flusher = flusher.New(fileDB, a.cfg.FlushInterval)
	a.flusher.ListenErrors(func(err error) {
		logger.Log.Debugln("Error calling the `Flush()`: ", zap.Error(err))
	})
	a.flusher.Run(ctx)
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.MongoURI != "" {
		return models.StorageTypeMongo
	}

	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypeMongo:
		return mongodb.New(
			context.Background(),
			cfg.MongoURI,
			cfg.MongoDatabase,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
