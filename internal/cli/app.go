package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/bandit"
	"github.com/aretw0/bandit/internal/config"
	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/pkg/adapters/file"
	httpAdapter "github.com/aretw0/bandit/pkg/adapters/http"
	loamAdapter "github.com/aretw0/bandit/pkg/adapters/loam"
	"github.com/aretw0/bandit/pkg/adapters/memory"
	"github.com/aretw0/bandit/pkg/adapters/redis"
	"github.com/aretw0/bandit/pkg/adapters/sqlite"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/metrics"
	"github.com/aretw0/bandit/pkg/persistence/middleware"
	"github.com/aretw0/bandit/pkg/ports"
	"github.com/aretw0/bandit/pkg/session"
)

// pingTimeout bounds the Redis reachability check at startup.
const pingTimeout = 2 * time.Second

// App is a fully wired bandit process built from a config.Config.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Bandit   *bandit.Bandit
	Sites    ports.SiteProvider
	Sessions *session.Manager
	// Events is nil unless metrics.events_path is set.
	Events   *sqlite.EventStore
	Registry *prometheus.Registry

	closers []func() error
}

// NewLogger builds the process logger from the config.
func NewLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.LogFormat == "json" {
		return logging.NewJSON(os.Stderr, level), nil
	}
	return logging.New(level), nil
}

// Build wires every component. Call Close when done.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	app.Sites = newSiteProvider(cfg)

	sessions, err := app.newSessions(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.Sessions = sessions

	sink, err := app.newSink()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Bandit, err = bandit.New(
		bandit.WithProvider(app.Sites),
		bandit.WithSessionManager(sessions),
		bandit.WithSink(sink),
		bandit.WithLogger(logger),
		bandit.WithMountDefaults(mountDefaults(cfg)...),
	)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

// mountDefaults turns the configured site, timeout, defer mode and fallback
// variant into options shared by every mount.
func mountDefaults(cfg config.Config) []bandit.MountOption {
	opts := []bandit.MountOption{
		bandit.WithSite(cfg.SiteName),
		bandit.WithTimeout(cfg.Timeout),
	}
	if cfg.Defer {
		opts = append(opts, bandit.WithDefer())
	}
	if cfg.FallbackVariant != "" {
		opts = append(opts, bandit.WithFallbackVariant(cfg.FallbackVariant))
	}
	return opts
}

// newSiteProvider reads sites from a directory, or from another bandit
// server when sites_dir is a URL.
func newSiteProvider(cfg config.Config) ports.SiteProvider {
	if strings.HasPrefix(cfg.SitesDir, "http://") || strings.HasPrefix(cfg.SitesDir, "https://") {
		return httpAdapter.NewClient(cfg.SitesDir)
	}
	return loamAdapter.NewProvider(cfg.SitesDir)
}

func (a *App) newSessions(ctx context.Context) (*session.Manager, error) {
	opts := []session.Option{session.WithLogger(a.Logger)}
	storage := a.Config.Storage

	var store ports.SessionStore
	switch storage.Backend {
	case config.BackendFile:
		store = file.NewStore(storage.Dir)

	case config.BackendRedis:
		rc := storage.Redis
		rs := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix), redis.WithTTL(rc.TTL))
		a.closers = append(a.closers, rs.Close)

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("%w: redis %s: %w", domain.ErrStorageUnavailable, rc.Addr, err)
		}
		if rc.Lock {
			opts = append(opts, session.WithLocker(redis.NewLocker(rs.Client(), rc.Prefix)))
		}
		store = rs

	default:
		store = memory.NewStore()
	}

	if storage.EncryptionKey != "" {
		mw, err := newEncryption(storage)
		if err != nil {
			return nil, err
		}
		store = middleware.Chain(store, mw)
	}
	return session.NewManager(store, opts...), nil
}

func newEncryption(storage config.StorageConfig) (middleware.Middleware, error) {
	active, err := middleware.ParseKey(storage.EncryptionKey)
	if err != nil {
		return nil, err
	}
	var fallback [][]byte
	for _, encoded := range storage.FallbackKeys {
		key, err := middleware.ParseKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("fallback key: %w", err)
		}
		fallback = append(fallback, key)
	}
	return middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
}

func (a *App) newSink() (ports.MetricsSink, error) {
	mc := a.Config.Metrics
	var sinks metrics.Multi

	if mc.Prometheus {
		a.Registry = prometheus.NewRegistry()
		sinks = append(sinks, metrics.NewPrometheus(a.Registry))
	}

	var writer ports.EventWriter
	switch {
	case mc.EventsPath != "":
		store, err := sqlite.Open(mc.EventsPath)
		if err != nil {
			return nil, err
		}
		a.Events = store
		a.closers = append(a.closers, store.Close)
		writer = store
	case mc.IngestURL != "":
		writer = httpAdapter.NewClient(mc.IngestURL)
	}

	if writer != nil {
		sinks = append(sinks, metrics.NewBatcher(writer,
			metrics.WithBatchSize(mc.BatchSize),
			metrics.WithFlushInterval(mc.FlushInterval),
			metrics.WithLogger(a.Logger),
		))
	}
	return sinks, nil
}

// Handler returns the HTTP surface of the app.
func (a *App) Handler() http.Handler {
	opts := []httpAdapter.Option{
		httpAdapter.WithAssigner(a.Bandit),
		httpAdapter.WithLogger(a.Logger),
	}
	if a.Events != nil {
		opts = append(opts, httpAdapter.WithEventWriter(a.Events))
	}
	if a.Registry != nil {
		opts = append(opts, httpAdapter.WithGatherer(a.Registry))
	}
	return httpAdapter.NewHandler(a.Sites, opts...)
}

// Close flushes pending metrics and releases backends.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Bandit != nil {
		if err := a.Bandit.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
