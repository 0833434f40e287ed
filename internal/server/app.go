// Package server initializes and runs the DropLocker server.
// It selects the record and blob backends, builds the master key provider,
// starts the HTTP endpoint, and drives the background expiry sweep with
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/droplocker/droplocker/internal/logging"
	"github.com/droplocker/droplocker/internal/masterkey"
	"github.com/droplocker/droplocker/internal/server/blobs"
	"github.com/droplocker/droplocker/internal/server/config"
	"github.com/droplocker/droplocker/internal/server/httpapi"
	"github.com/droplocker/droplocker/internal/server/records"
	"github.com/droplocker/droplocker/internal/server/vault"
)

type App struct {
	config *config.Config
	logger logging.Logger
	vault  *vault.Service
	server *httpapi.Server
	db     *sql.DB
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	master, err := loadMasterKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("master key init error: %w", err)
	}

	app := &App{config: cfg, logger: logger}

	repo, err := app.initRecordRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("record store init error: %w", err)
	}

	store, err := app.initBlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	app.vault = vault.NewService(repo, store, master, logger, cfg.MaxExpiry)
	app.server = httpapi.NewServer(cfg.EndpointAddrHTTP, baseURL(cfg), logger, app.vault, cfg.LinkSecret)

	return app, nil
}

// loadMasterKey picks the key source: an explicit hex key wins over a
// passphrase-derived one.
func loadMasterKey(cfg *config.Config) (*masterkey.Provider, error) {
	if cfg.MasterKeyHex != "" {
		return masterkey.FromHex(cfg.MasterKeyHex)
	}
	return masterkey.FromPassphrase(cfg.MasterPassphrase, cfg.DataDir)
}

func (app *App) initRecordRepository(ctx context.Context) (records.Repository, error) {
	switch app.config.RecordBackend {
	case config.RecordBackendPostgres:
		db, err := records.OpenPostgres(ctx, app.config.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		app.db = db
		return records.NewPostgresRepository(db), nil
	case config.RecordBackendFile:
		return records.NewFileRepository(app.config.DataDir + "/records")
	default:
		return nil, fmt.Errorf("unknown record backend: %s", app.config.RecordBackend)
	}
}

func (app *App) initBlobStore(ctx context.Context) (blobs.Store, error) {
	switch app.config.BlobBackend {
	case config.BlobBackendS3:
		return blobs.NewS3Store(ctx, blobs.S3Config{
			Bucket:       app.config.S3Bucket,
			Region:       app.config.S3Region,
			BaseEndpoint: app.config.S3BaseEndpoint,
			RootUser:     app.config.S3RootUser,
			RootPassword: app.config.S3RootPassword,
		})
	case config.BlobBackendFile:
		return blobs.NewFileStore(app.config.DataDir + "/blobs")
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", app.config.BlobBackend)
	}
}

func baseURL(cfg *config.Config) string {
	addr := cfg.EndpointAddrHTTP
	if addr != "" && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runSweeper removes expired artifact pairs on a fixed interval.
// A zero interval disables the sweep; lazy expiry on access still applies.
func (app *App) runSweeper(ctx context.Context) {
	if app.config.SweepInterval <= 0 {
		app.logger.Info(ctx, "Background sweep disabled")
		return
	}

	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := app.vault.Sweep(ctx)
			if err != nil {
				app.logger.Error(ctx, "Sweep failed", "error", err.Error())
				continue
			}
			if removed > 0 {
				app.logger.Info(ctx, "Sweep finished", "removed", removed)
			}
		}
	}
}

// SweepOnce runs a single expiry sweep and returns the number of removed
// artifacts. Used by the admin CLI.
func (app *App) SweepOnce(ctx context.Context) (int, error) {
	return app.vault.Sweep(ctx)
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweeper(ctx)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "Closing database failed", "error", err.Error())
		}
	}
}
