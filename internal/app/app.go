package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"nifty-go/internal/api"
	"nifty-go/internal/config"
	"nifty-go/internal/content"
	"nifty-go/internal/database"
	"nifty-go/internal/encryption"
	"nifty-go/internal/identity"
	"nifty-go/internal/metrics"
	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

// ErrEncryptionDisabled is returned by SetupEncryption when encryption type is "none".
var ErrEncryptionDisabled = errors.New("encryption is disabled in the config")

// NiftyApp is the application layer between the CLI and the registry Service.
// It constructs all dependencies from config and releases them on Close.
type NiftyApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	store   registry.ContentStore
	metrics *metrics.Metrics
	service *registry.Service
	logger  registry.Logger
	run     *Run
	logFile *os.File
}

// NewNiftyApp creates a fully wired NiftyApp from the given config.
// command names the CLI command being run and is logged with the run id.
// The caller must call Close when done.
func NewNiftyApp(ctx context.Context, cfg *config.Config, command string) (*NiftyApp, error) {
	run := NewRun(command)
	sl, logFile, err := newLogger(cfg.LogDir, run.ID, parseLevel(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	fail := func(err error) (*NiftyApp, error) {
		db.Close()
		logFile.Close()
		return nil, err
	}

	if err := db.CheckMigrations(); err != nil {
		return fail(fmt.Errorf("database schema out of date (run 'nifty db migrate'): %w", err))
	}

	store, err := newContentStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if err := store.ValidateSetup(ctx); err != nil {
		return fail(fmt.Errorf("content store not ready: %w", err))
	}

	clock := registry.RealClock{}
	idp, err := identity.NewProviderFromConfig(cfg.Identity, clock)
	if err != nil {
		return fail(fmt.Errorf("creating identity provider: %w", err))
	}

	m := metrics.New()
	tokens := registry.NewBlockAllocator(db, cfg.Registry.TokenBlockSize)
	svc := registry.NewService(db, store, idp, tokens, limitsFromConfig(cfg.Registry), logger, clock, m)

	logger.Debug("command started", "command", command, "database", db.Path(), "content", cfg.Content.Type)

	return &NiftyApp{
		cfg:     cfg,
		db:      db,
		store:   store,
		metrics: m,
		service: svc,
		logger:  logger,
		run:     run,
		logFile: logFile,
	}, nil
}

// newContentStore builds the configured store, wrapped in an EncryptedStore
// when encryption is enabled.
func newContentStore(ctx context.Context, cfg *config.Config, logger registry.Logger) (registry.ContentStore, error) {
	store, err := content.NewContentStoreFromConfig(ctx, cfg.Content, logger)
	if err != nil {
		return nil, fmt.Errorf("creating content store: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return store, nil
	}
	return content.NewEncryptedStore(store, enc), nil
}

func limitsFromConfig(r config.RegistryConfig) registry.Limits {
	return registry.Limits{
		MaxFolderNameLength:  r.MaxFolderNameLength,
		MaxDisplayNameLength: r.MaxDisplayNameLength,
		MaxMimeTypeLength:    r.MaxMimeTypeLength,
		MaxUploadSize:        r.MaxUploadSize,
	}
}

func (a *NiftyApp) Service() *registry.Service { return a.service }

func (a *NiftyApp) Config() *config.Config { return a.cfg }

func (a *NiftyApp) Logger() registry.Logger { return a.logger }

// NeedsPassphrase reports whether reading content requires Unlock first.
func (a *NiftyApp) NeedsPassphrase() bool {
	u, ok := a.store.(content.Unlocker)
	return ok && u.Locked()
}

// Unlock unseals the content store's private key. It is a no-op when
// content is not encrypted.
func (a *NiftyApp) Unlock(passphrase string) error {
	u, ok := a.store.(content.Unlocker)
	if !ok {
		return nil
	}
	return u.Unlock(passphrase)
}

// Health reports whether the database is reachable. Used by /health/ready.
func (a *NiftyApp) Health(ctx context.Context) error {
	return a.db.Ping(ctx)
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *NiftyApp) Serve(ctx context.Context) error {
	srv := api.NewServer(a.service, a.logger, api.Options{
		Metrics: a.metrics,
		Health:  a.Health,
	})
	s := a.cfg.Server
	return srv.Serve(ctx, nil, api.ListenConfig{
		Addr:            s.Listen,
		ReadTimeout:     time.Duration(s.ReadTimeout),
		WriteTimeout:    time.Duration(s.WriteTimeout),
		ShutdownTimeout: time.Duration(s.ShutdownTimeout),
	})
}

// Backup snapshots the database with VACUUM INTO and stores the snapshot in
// the content store. It returns the snapshot's content id.
func (a *NiftyApp) Backup(ctx context.Context) (string, error) {
	tmp, err := os.CreateTemp("", "nifty-db-backup-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for db backup: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return "", err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("opening db backup: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat db backup: %w", err)
	}

	cid, err := a.store.Put(ctx, f, info.Size())
	if err != nil {
		return "", fmt.Errorf("storing db backup: %w", err)
	}
	a.logger.Info("database backed up", "cid", cid, "size", info.Size())
	return cid, nil
}

// Close closes the database and the log file.
func (a *NiftyApp) Close() error {
	a.logger.Debug("command finished", "command", a.run.Command, "duration", a.run.Elapsed().String())

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// Migrate applies pending schema migrations to the configured database.
func Migrate(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// SetupEncryption generates the key pair the configured encryptor uses.
func SetupEncryption(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return ErrEncryptionDisabled
	}
	return enc.Setup(passphrase)
}

// IssueToken signs a bearer token for account with the configured JWT secret.
func IssueToken(cfg *config.Config, account string) (string, time.Time, error) {
	if cfg.Identity.Type != "jwt" {
		return "", time.Time{}, fmt.Errorf("identity type is %q; tokens are only issued for type jwt", cfg.Identity.Type)
	}
	p, err := identity.NewJWTProvider(cfg.Identity, registry.RealClock{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating identity provider: %w", err)
	}
	return p.Issue(model.Account(account))
}
