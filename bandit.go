package bandit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/internal/runtime"
	"github.com/aretw0/bandit/pkg/adapters/memory"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
	"github.com/aretw0/bandit/pkg/selection"
	"github.com/aretw0/bandit/pkg/session"
)

const (
	// DefaultTimeout bounds the WAIT phase when no timeout is set.
	DefaultTimeout = runtime.DefaultTimeout
	// NoTimeout disables the load timer.
	NoTimeout = runtime.NoTimeout
)

// Bandit is the high-level entry point. It holds the state shared by every
// mounted Instance of a process.
type Bandit struct {
	provider   ports.SiteProvider
	sessions   *session.Manager
	sink       ports.MetricsSink
	logger     *slog.Logger
	loaderOpts []runtime.LoaderOption
	loader     *runtime.Loader
	defaults   []MountOption
}

// Option configures a Bandit.
type Option func(*Bandit)

// WithProvider sets where sites are fetched from. Required.
func WithProvider(p ports.SiteProvider) Option {
	return func(b *Bandit) {
		b.provider = p
	}
}

// WithSessionStore persists assignments in store. Defaults to memory.
func WithSessionStore(store ports.SessionStore) Option {
	return func(b *Bandit) {
		b.sessions = session.NewManager(store)
	}
}

// WithSessionManager shares an existing manager, e.g. one with a distributed locker.
func WithSessionManager(m *session.Manager) Option {
	return func(b *Bandit) {
		b.sessions = m
	}
}

// WithSink sets the metrics sink shared by every Instance.
func WithSink(sink ports.MetricsSink) Option {
	return func(b *Bandit) {
		b.sink = sink
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bandit) {
		b.logger = logger
	}
}

// WithFallbackSite replaces the built-in default site used on failures.
func WithFallbackSite(site domain.Site) Option {
	return func(b *Bandit) {
		b.loaderOpts = append(b.loaderOpts, runtime.WithFallbackSite(site))
	}
}

// WithSelector replaces the random variant selector.
func WithSelector(s *selection.Selector) Option {
	return func(b *Bandit) {
		b.loaderOpts = append(b.loaderOpts, runtime.WithSelector(s))
	}
}

// WithTracerProvider sets the provider for site fetch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bandit) {
		b.loaderOpts = append(b.loaderOpts, runtime.WithTracerProvider(tp))
	}
}

// WithMountDefaults sets options applied to every Mount and Assign before
// their own options.
func WithMountDefaults(opts ...MountOption) Option {
	return func(b *Bandit) {
		b.defaults = append(b.defaults, opts...)
	}
}

// New initializes a Bandit.
func New(opts ...Option) (*Bandit, error) {
	b := &Bandit{}
	for _, opt := range opts {
		opt(b)
	}

	if b.provider == nil {
		return nil, fmt.Errorf("a site provider is required")
	}
	if b.logger == nil {
		b.logger = logging.NewNop()
	}
	if b.sessions == nil {
		b.sessions = session.NewManager(memory.NewStore(), session.WithLogger(b.logger))
	}
	if b.sink == nil {
		b.sink = discardSink{}
	}

	loaderOpts := append([]runtime.LoaderOption{runtime.WithLoaderLogger(b.logger)}, b.loaderOpts...)
	b.loader = runtime.NewLoader(b.provider, loaderOpts...)
	return b, nil
}

// Sessions returns the session manager.
func (b *Bandit) Sessions() *session.Manager {
	return b.sessions
}

// Fallback returns a copy of the site used when loading fails.
func (b *Bandit) Fallback() domain.Site {
	return b.loader.Fallback()
}

// Fetch retrieves and validates a site without resolving a variant.
func (b *Bandit) Fetch(ctx context.Context, siteName string) (domain.Site, error) {
	return b.loader.Fetch(ctx, siteName)
}

// Mount creates an Instance in PRELOAD for sessionID. An empty sessionID
// gets a fresh random one.
func (b *Bandit) Mount(sessionID string, opts ...MountOption) *Instance {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m := &mount{cfg: runtime.Config{SiteName: domain.DefaultName}}
	for _, opt := range b.defaults {
		opt(m)
	}
	for _, opt := range opts {
		opt(m)
	}

	ctrlOpts := []runtime.Option{
		runtime.WithSink(sharedSink{b.sink}),
		runtime.WithLogger(b.logger.With("session_id", sessionID)),
	}
	if m.host != nil {
		ctrlOpts = append(ctrlOpts, runtime.WithHost(m.host))
	}

	return &Instance{
		ctrl: runtime.NewController(b.loader, b.sessions.Session(sessionID), m.cfg, ctrlOpts...),
	}
}

// Assign resolves the variant of a session synchronously, for server-side
// rendering. The site is fetched first; on failure nothing is recorded.
// Mount defaults such as the fallback variant apply.
func (b *Bandit) Assign(ctx context.Context, sessionID, siteName, variant string) (domain.Snapshot, error) {
	site, err := b.loader.Fetch(ctx, siteName)
	if err != nil {
		return domain.Snapshot{}, err
	}

	// No Close: the shared sink flushes on its own schedule.
	inst := b.Mount(sessionID, WithInitialSite(site), WithVariant(variant))
	inst.Start(ctx)
	return inst.Snapshot(), inst.Err()
}

// Close performs the final flush of the shared sink.
func (b *Bandit) Close(ctx context.Context) error {
	return b.sink.Flush(ctx, true)
}

// MountOption configures one Instance.
type MountOption func(*mount)

type mount struct {
	cfg  runtime.Config
	host ports.Host
}

// WithSite names the site to load.
func WithSite(name string) MountOption {
	return func(m *mount) {
		m.cfg.SiteName = name
	}
}

// WithInitialSite provides an already fetched site. Start then resolves
// synchronously.
func WithInitialSite(site domain.Site) MountOption {
	return func(m *mount) {
		m.cfg.SiteName = site.Name
		m.cfg.InitialSite = &site
	}
}

// WithVariant requests a variant by name, e.g. from a query parameter.
func WithVariant(name string) MountOption {
	return func(m *mount) {
		m.cfg.Variant = name
	}
}

// WithTimeout bounds the WAIT phase. Use NoTimeout to wait indefinitely.
func WithTimeout(d time.Duration) MountOption {
	return func(m *mount) {
		m.cfg.Timeout = d
	}
}

// WithDefer hides the content on the first render pass.
func WithDefer() MountOption {
	return func(m *mount) {
		m.cfg.Defer = true
	}
}

// WithFallbackVariant overrides the site default when the draw misses.
func WithFallbackVariant(name string) MountOption {
	return func(m *mount) {
		m.cfg.FallbackVariant = name
	}
}

// WithHost registers lifecycle callbacks.
func WithHost(host ports.Host) MountOption {
	return func(m *mount) {
		m.host = host
	}
}

// Instance is one mounted bandit context.
type Instance struct {
	ctrl *runtime.Controller
}

// Start leaves PRELOAD. See WithInitialSite for the synchronous path.
func (i *Instance) Start(ctx context.Context) { i.ctrl.Start(ctx) }

// Render is one render pass; the bool reports whether content should show.
func (i *Instance) Render() (domain.Snapshot, bool) { return i.ctrl.Render() }

// Select overrides the variant and makes it sticky.
func (i *Instance) Select(ctx context.Context, variant string) (domain.Site, error) {
	return i.ctrl.Select(ctx, variant)
}

// Sink records a named event for the current variant.
func (i *Instance) Sink(name string) { i.ctrl.Sink(name) }

// Convert records a conversion for the current variant.
func (i *Instance) Convert() { i.ctrl.Convert() }

// Ready is closed once the instance reaches READY.
func (i *Instance) Ready() <-chan struct{} { return i.ctrl.Ready() }

// Updates signals when a re-render is due.
func (i *Instance) Updates() <-chan struct{} { return i.ctrl.Updates() }

// Wait blocks until READY or ctx is done.
func (i *Instance) Wait(ctx context.Context) (domain.Snapshot, error) { return i.ctrl.Wait(ctx) }

// Snapshot returns the current view.
func (i *Instance) Snapshot() domain.Snapshot { return i.ctrl.Snapshot() }

// State returns the load state.
func (i *Instance) State() domain.LoadState { return i.ctrl.State() }

// Err returns the last error reported to the host.
func (i *Instance) Err() error { return i.ctrl.Err() }

// Close flushes pending events. The shared sink stays open until Bandit.Close.
func (i *Instance) Close(ctx context.Context) { i.ctrl.Close(ctx) }

// sharedSink keeps one Instance from finalizing the sink of the whole process.
type sharedSink struct {
	ports.MetricsSink
}

func (s sharedSink) Flush(ctx context.Context, final bool) error {
	return s.MetricsSink.Flush(ctx, false)
}

func (s sharedSink) ObserveLoad(site, outcome string, d time.Duration) {
	if o, ok := s.MetricsSink.(ports.LoadObserver); ok {
		o.ObserveLoad(site, outcome, d)
	}
}

type discardSink struct{}

func (discardSink) SinkEvent(domain.Snapshot, string) {}
func (discardSink) Flush(context.Context, bool) error { return nil }
