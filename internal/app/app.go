// Package app wires configuration into a ready session manager and flow
// orchestrator for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/chimerakang/authkit-go/audit"
	"github.com/chimerakang/authkit-go/backend"
	"github.com/chimerakang/authkit-go/flow"
	"github.com/chimerakang/authkit-go/idp/cognito"
	"github.com/chimerakang/authkit-go/idp/oidc"
	"github.com/chimerakang/authkit-go/internal/config"
	"github.com/chimerakang/authkit-go/metrics"
	"github.com/chimerakang/authkit-go/session"
	"github.com/chimerakang/authkit-go/store"
)

// App holds the wired components. Close it to flush audit events and metrics.
type App struct {
	Session *session.Manager
	Flows   *flow.Orchestrator
	Logger  *slog.Logger

	store    *store.Store
	audit    *audit.Logger
	registry *prometheus.Registry
	textfile string
	closers  []io.Closer
}

type options struct {
	idp          authkit.IdentityProvider
	backend      authkit.BackendAPI
	storeBackend store.Backend
	logger       *slog.Logger
	auditWriter  io.Writer
	httpClient   *http.Client
}

// Option overrides a component normally built from configuration.
type Option func(*options)

// WithIdentityProvider replaces the configured identity provider.
func WithIdentityProvider(idp authkit.IdentityProvider) Option {
	return func(o *options) { o.idp = idp }
}

// WithBackend replaces the configured backend API.
func WithBackend(b authkit.BackendAPI) Option {
	return func(o *options) { o.backend = b }
}

// WithStoreBackend replaces the configured storage backend.
func WithStoreBackend(b store.Backend) Option {
	return func(o *options) { o.storeBackend = b }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAuditWriter sends audit events to w instead of the configured path.
func WithAuditWriter(w io.Writer) Option {
	return func(o *options) { o.auditWriter = w }
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Backend.Timeout}
	}

	a := &App{Logger: o.logger, textfile: cfg.Metrics.TextfilePath}
	var reg prometheus.Registerer
	if a.textfile != "" {
		a.registry = prometheus.NewRegistry()
		reg = a.registry
	}
	mt := metrics.New(reg)

	if err := a.openAudit(cfg.Audit, o.auditWriter); err != nil {
		return nil, err
	}

	sb := o.storeBackend
	if sb == nil {
		var err error
		if sb, err = openStore(ctx, cfg.Store); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.store = store.New(sb, store.WithLogger(o.logger), store.WithMetrics(mt))
	a.closers = append(a.closers, a.store)

	idp := o.idp
	if idp == nil {
		var err error
		if idp, err = openProvider(ctx, cfg, o.httpClient, o.logger); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	var bc *backend.Client
	be := o.backend
	if be == nil && cfg.Backend.BaseURL != "" {
		bc = backend.New(cfg.Backend.BaseURL,
			backend.WithHTTPClient(o.httpClient),
			backend.WithLogger(o.logger),
			backend.WithUserAgent(config.VersionInfo()),
		)
		be = bc
	}

	sessOpts := []session.Option{
		session.WithConfig(cfg.Session),
		session.WithLogger(o.logger),
		session.WithMetrics(mt),
		session.WithAudit(a.audit),
	}
	if be != nil {
		sessOpts = append(sessOpts, session.WithBackend(be))
	}
	a.Session = session.New(idp, a.store, sessOpts...)
	if bc != nil {
		bc.UseTokenSource(a.Session.TokenSource(context.WithoutCancel(ctx)))
	}

	a.Flows = flow.New(be, idp,
		flow.WithLogger(o.logger),
		flow.WithMetrics(mt),
		flow.WithAudit(a.audit),
	)
	return a, nil
}

func (a *App) openAudit(cfg config.AuditConfig, w io.Writer) error {
	switch {
	case w != nil:
		a.audit = audit.New(0, audit.WithWriter(w))
	case !cfg.Enabled:
		return nil
	case cfg.Path == "":
		a.audit = audit.New(0, audit.WithHandler(func(e audit.Event) {
			a.Logger.Info("audit", "action", e.Action, "user", e.UserID, "result", e.Result, "method", e.Method)
		}))
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return fmt.Errorf("create audit directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		a.audit = audit.New(0, audit.WithWriter(f))
		a.closers = append(a.closers, f)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	var sealer *store.Sealer
	if cfg.Passphrase != "" {
		var err error
		if sealer, err = store.NewSealer(cfg.Passphrase, cfg.Salt); err != nil {
			return nil, err
		}
	}

	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverFile:
		return store.NewFile(cfg.Path, sealer)
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		return store.OpenSQLite(ctx, cfg.Path, sealer)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return store.NewRedis(client,
			store.WithPrefix(cfg.Redis.Prefix),
			store.WithTTL(cfg.Redis.TTL),
			store.WithSealer(sealer),
		), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openProvider(ctx context.Context, cfg *config.Config, hc *http.Client, logger *slog.Logger) (authkit.IdentityProvider, error) {
	switch cfg.Provider {
	case config.ProviderCognito:
		return cognito.New(cfg.Cognito, cognito.WithHTTPClient(hc), cognito.WithLogger(logger))
	case config.ProviderOIDC:
		return oidc.New(ctx, cfg.OIDC, oidc.WithHTTPClient(hc), oidc.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Close flushes audit events, writes the metrics textfile and releases storage.
func (a *App) Close() error {
	var errs []error
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.registry != nil {
		if err := prometheus.WriteToTextfile(a.textfile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
