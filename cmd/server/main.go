// Shared notes server: signup/signin, notes CRUD, sharing and search over HTTP.
//
// Usage:
//
//	SECRET_KEY=... ./server [--test] [--no-email] [--no-s3] [--addr :5000]
//
// Build with cgo and the FTS5 tag, which the SQLite search index needs:
//
//	CGO_ENABLED=1 go build -tags sqlite_fts5 -o bin/server ./cmd/server
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kuitang/shared-notes/internal/api"
	"github.com/kuitang/shared-notes/internal/auth"
	"github.com/kuitang/shared-notes/internal/config"
	"github.com/kuitang/shared-notes/internal/db"
	"github.com/kuitang/shared-notes/internal/email"
	"github.com/kuitang/shared-notes/internal/export"
	"github.com/kuitang/shared-notes/internal/notes"
	"github.com/kuitang/shared-notes/internal/obs"
	"github.com/kuitang/shared-notes/internal/pgstore"
	"github.com/kuitang/shared-notes/internal/ratelimit"
	"github.com/kuitang/shared-notes/internal/s3client"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	obs.Init()
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	cfg.PrintStartupSummary()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		obs.Pkg("main").Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		obs.Pkg("main").Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// app is the wired server with everything that needs closing on exit.
type app struct {
	handler http.Handler
	closers []io.Closer
	cleanup []func()
}

func (a *app) Close() error {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

type storage struct {
	users auth.UserStore
	notes notes.Repository
	io.Closer
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &storage{users: store.Users(), notes: store.Notes(), Closer: store}, nil
	default:
		store, err := db.Open(ctx, cfg.DatabasePath, cfg.EncryptionKey())
		if err != nil {
			return nil, err
		}
		return &storage{users: store.Users(), notes: store.Notes(), Closer: store}, nil
	}
}

func newEmailService(cfg *config.Config) (email.EmailService, error) {
	if !cfg.NoEmail {
		return email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail), nil
	}
	outbox := filepath.Join(filepath.Dir(cfg.DatabasePath), "outbox")
	return email.NewMockEmailServiceWithOutbox(outbox)
}

// newExporter returns nil when exports have nowhere to go.
func newExporter(ctx context.Context, cfg *config.Config, lister export.Lister, a *app) (*export.Exporter, error) {
	switch {
	case cfg.NoS3:
		client, cleanup, err := s3client.NewInMemory(ctx, cfg.AWSBucketName)
		if err != nil {
			return nil, fmt.Errorf("in-memory s3: %w", err)
		}
		a.cleanup = append(a.cleanup, cleanup)
		return export.NewExporter(lister, client), nil
	case cfg.AWSEndpointS3 != "":
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return export.NewExporter(lister, client), nil
	default:
		return nil, nil
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	emailSvc, err := newEmailService(cfg)
	if err != nil {
		return nil, err
	}

	codec := auth.NewJWTCodec([]byte(cfg.SecretKey), cfg.TokenTTL)
	users := auth.NewUserService(store.users, auth.BcryptHasher{Cost: cfg.BcryptCost}, codec, emailSvc)

	notesSvc := notes.NewService(store.notes, users)
	notesSvc.SetNotifier(auth.NewShareNotifier(store.users, emailSvc, cfg.BaseURL))

	exporter, err := newExporter(ctx, cfg, notesSvc, a)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewRateLimiter(cfg.AuthRateLimit)
	a.cleanup = append(a.cleanup, limiter.Stop)

	mux := http.NewServeMux()
	auth.NewHandler(users, ratelimit.Middleware(limiter, ratelimit.KeyFunc(cfg.TrustProxyHeaders))).RegisterRoutes(mux)
	api.NewHandler(notesSvc, exporter, auth.NewAuthenticator(codec)).RegisterRoutes(mux)

	a.handler = obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", mux))
	return a, nil
}
