package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"mdnotes/internal/config"
	"mdnotes/internal/database"
	"mdnotes/internal/encryption"
	"mdnotes/internal/github"
	"mdnotes/internal/httpapi"
	"mdnotes/internal/model"
	"mdnotes/internal/notes"
	"mdnotes/internal/vault"
)

// shutdownTimeout bounds how long Serve waits for in-flight requests.
const shutdownTimeout = 15 * time.Second

// App is the application layer between the CLI and notes.Service.
// It constructs all dependencies from config, exposes the operations the CLI
// runs and manages the database lifecycle on Close.
type App struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	service *notes.Service
	logger  *slog.Logger
	clock   notes.Clock
	op      *Operation
	logFile io.Closer
}

// New creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Serve", "Pull").
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clock := notes.RealClock{}
	op := NewOperation(operation, clock)
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, slog.LevelInfo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := openDatabase(ctx, cfg, &slogAdapter{l: logger})
	if err != nil {
		logFile.Close()
		return nil, err
	}

	// A nil *github.Client must not end up inside the interface.
	var gh notes.GitHub
	if cfg.GitHub.AppID != 0 {
		client, err := newGitHubClient(cfg, &slogAdapter{l: logger}, clock)
		if err != nil {
			db.Close()
			logFile.Close()
			return nil, err
		}
		gh = client
	} else {
		logger.Warn("github.app_id not set, sync is disabled")
	}

	ttl := time.Duration(cfg.Server.SessionTTLHours) * time.Hour
	svc := notes.NewService(db, gh, &slogAdapter{l: logger}, clock, notes.UUIDGenerator{}, ttl)

	logger.Info("operation started", "operation", op.Name)
	return &App{
		cfg:     cfg,
		db:      db,
		service: svc,
		logger:  logger,
		clock:   clock,
		op:      op,
		logFile: logFile,
	}, nil
}

// openDatabase opens the configured database. In-memory databases are
// migrated on open; file databases must already be migrated and must not be
// older than the newest snapshot in the vault.
func openDatabase(ctx context.Context, cfg *config.Config, logger notes.Logger) (*database.SQLiteDatabase, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if cfg.Database.Type == "memory" {
		if err := db.MigrateUp(logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		return db, nil
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	if len(cfg.Vaults) == 0 {
		return db, nil
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := checkSnapshotVersion(ctx, db, v); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// checkSnapshotVersion fails when the vault holds a snapshot taken after the
// local database's newest sync operation.
func checkSnapshotVersion(ctx context.Context, db snapshotSource, v notes.Vault) error {
	remote, err := v.GetSnapshotVersion(SnapshotName)
	if err != nil {
		return fmt.Errorf("checking remote snapshot version: %w", err)
	}
	local, err := db.MaxSyncOperationID(ctx)
	if err != nil {
		return fmt.Errorf("checking local snapshot version: %w", err)
	}
	if remote > local {
		return fmt.Errorf("local database is behind the vault snapshot (local=%d, remote=%d): run restore-db or re-initialize", local, remote)
	}
	return nil
}

func newGitHubClient(cfg *config.Config, logger notes.Logger, clock notes.Clock) (*github.Client, error) {
	key, err := github.LoadPrivateKey(cfg.GitHub.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading github app key: %w", err)
	}
	client, err := github.New(github.Options{
		AppID:       cfg.GitHub.AppID,
		PrivateKey:  key,
		APIURL:      cfg.GitHub.APIURL,
		Concurrency: cfg.Server.Concurrency,
		Logger:      logger,
		Clock:       clock,
	})
	if err != nil {
		return nil, fmt.Errorf("creating github client: %w", err)
	}
	return client, nil
}

func newOAuthClient(cfg *config.Config) (*github.OAuth, error) {
	secret, err := github.LoadClientSecret(cfg.GitHub.ClientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("loading oauth client secret: %w", err)
	}
	oauth, err := github.NewOAuth(github.OAuthOptions{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: secret,
		WebURL:       cfg.GitHub.WebURL,
		APIURL:       cfg.GitHub.APIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oauth client: %w", err)
	}
	return oauth, nil
}

// Serve runs the HTTP API until ctx is cancelled, then drains in-flight
// requests.
func (a *App) Serve(ctx context.Context) error {
	secret, err := a.webhookSecret()
	if err != nil {
		a.op.Fail(err)
		return err
	}

	opts := httpapi.Options{
		SecureCookies: a.cfg.Server.SecureCookies,
		WebhookSecret: secret,
	}
	if a.cfg.GitHub.ClientID != "" {
		oauth, err := newOAuthClient(a.cfg)
		if err != nil {
			a.op.Fail(err)
			return err
		}
		opts.OAuth = oauth
	} else {
		a.logger.Info("github.client_id not set, GitHub sign-in is disabled")
	}

	api := httpapi.New(a.service, &slogAdapter{l: a.logger}, opts)
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.op.Fail(err)
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.op.Fail(err)
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.op.Fail(err)
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// webhookSecret loads the webhook secret. A missing file disables the
// webhook endpoint.
func (a *App) webhookSecret() ([]byte, error) {
	path := a.cfg.GitHub.WebhookSecretFile
	if path == "" {
		return nil, nil
	}
	secret, err := github.LoadWebhookSecret(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("webhook secret file not found, webhook endpoint disabled", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading webhook secret: %w", err)
	}
	return secret, nil
}

// AddUser creates an account from the command line.
func (a *App) AddUser(ctx context.Context, email, password string) (*model.User, error) {
	user, err := a.service.CreateUser(ctx, email, password)
	a.op.Fail(err)
	return user, err
}

// RepositoryPull is the outcome of pulling one repository.
type RepositoryPull struct {
	Repository *model.Repository
	Result     *notes.PullResult
	Err        error
}

// Pull pulls every repository linked by the user, or only the one whose full
// name matches fullName when it is non-empty. A failing repository does not
// stop the others; its error is reported in its RepositoryPull.
func (a *App) Pull(ctx context.Context, email, fullName string) ([]RepositoryPull, error) {
	user, err := a.service.FindUserByEmail(ctx, email)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	ws, err := a.service.Workspace(ctx, user.ID)
	if err != nil {
		a.op.Fail(err)
		return nil, fmt.Errorf("loading workspace: %w", err)
	}

	roots := repositoryRoots(ws.Folders, map[int64]string{})
	var out []RepositoryPull
	for _, repo := range ws.Repositories {
		if fullName != "" && repo.FullName != fullName {
			continue
		}
		rootID, ok := roots[repo.ID]
		if !ok {
			continue
		}
		res, err := a.service.Pull(ctx, user.ID, notes.PullInput{RootFolderID: rootID})
		a.op.Fail(err)
		out = append(out, RepositoryPull{Repository: repo, Result: res, Err: err})
	}
	if fullName != "" && len(out) == 0 {
		err := fmt.Errorf("repository %q is not linked: %w", fullName, notes.ErrNotFound)
		a.op.Fail(err)
		return nil, err
	}
	return out, nil
}

// repositoryRoots maps repository ids to their root folder ids.
func repositoryRoots(nodes []*notes.FolderNode, roots map[int64]string) map[int64]string {
	for _, n := range nodes {
		if n.RepositoryID != 0 {
			roots[n.RepositoryID] = n.ID
		}
		repositoryRoots(n.Folders, roots)
	}
	return roots
}

// History returns the most recent sync operations of all users.
func (a *App) History(ctx context.Context, limit int) ([]*model.SyncOperation, error) {
	return a.service.History(ctx, "", limit)
}

// Backup uploads an encrypted snapshot of the database to the first vault.
func (a *App) Backup(ctx context.Context) (int64, error) {
	version, err := a.backup(ctx)
	a.op.Fail(err)
	return version, err
}

func (a *App) backup(ctx context.Context) (int64, error) {
	if a.cfg.Database.Type == "memory" {
		return 0, fmt.Errorf("in-memory databases cannot be backed up")
	}
	if len(a.cfg.Vaults) == 0 {
		return 0, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, a.cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}
	if !enc.IsConfigured() {
		return 0, fmt.Errorf("encryption keys not found: run config keys init")
	}

	version, err := BackupDatabase(ctx, a.db, v, enc)
	if err != nil {
		return 0, err
	}
	a.logger.Info("database snapshot uploaded", "vault", a.cfg.Vaults[0].Name, "version", version)
	return version, nil
}

// Close records the outcome of the operation and closes all resources.
func (a *App) Close() error {
	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(a.clock))

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// Migrate applies pending schema migrations to the configured database,
// reporting each version applied on stderr.
func Migrate(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()
	if err := db.MigrateUp(&slogAdapter{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Restore downloads the newest snapshot from the first vault and decrypts it
// to dest. It does not open the local database, which may be missing or
// behind the vault.
func Restore(ctx context.Context, cfg *config.Config, passphrase, dest string) (int64, error) {
	if len(cfg.Vaults) == 0 {
		return 0, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}
	return RestoreDatabase(v, enc, passphrase, dest)
}

// SetupKeys generates the snapshot encryption key pair.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}
