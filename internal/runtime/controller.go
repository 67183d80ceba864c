package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
	"github.com/aretw0/bandit/pkg/session"
)

const (
	// DefaultTimeout applies when Config.Timeout is zero.
	DefaultTimeout = 500 * time.Millisecond

	// NoTimeout disables the load timer.
	NoTimeout time.Duration = -1
)

// Load outcomes reported to ports.LoadObserver.
const (
	OutcomeReady   = "ready"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// race outcome flag values
const (
	raceOpen int32 = iota
	raceFetched
	raceTimedOut
)

// Config is the per-mount configuration.
type Config struct {
	SiteName string
	// InitialSite skips the fetch: the machine resolves synchronously in Start.
	InitialSite *domain.Site
	// Variant requests a specific variant name, e.g. from a query parameter.
	Variant string
	// Timeout bounds the WAIT phase. Zero means DefaultTimeout; NoTimeout disables the timer.
	Timeout time.Duration
	// Defer makes the first Render return nothing.
	Defer bool
	// FallbackVariant overrides the site default when the draw misses.
	FallbackVariant string
}

// EffectiveTimeout resolves the zero value and the sentinel.
func (c Config) EffectiveTimeout() time.Duration {
	switch {
	case c.Timeout == 0:
		return DefaultTimeout
	case c.Timeout < 0:
		return 0
	default:
		return c.Timeout
	}
}

// Controller is one mounted bandit context. It owns its LoadState.
type Controller struct {
	cfg    Config
	loader *Loader
	sess   *session.Store
	sink   ports.MetricsSink
	host   ports.Host
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   domain.LoadState
	site    domain.Site
	variant domain.Variant
	lastErr error

	race      atomic.Int32
	timer     *time.Timer
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
	updates   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink sets the metrics sink.
func WithSink(sink ports.MetricsSink) Option {
	return func(c *Controller) {
		c.sink = sink
	}
}

// WithHost registers host callbacks.
func WithHost(host ports.Host) Option {
	return func(c *Controller) {
		c.host = host
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides time.Now for LoadState timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller in PRELOAD. sess may be nil to disable affinity.
// Until READY the context exposes the fallback site.
func NewController(loader *Loader, sess *session.Store, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		loader:  loader,
		sess:    sess,
		sink:    nopSink{},
		host:    ports.HostFuncs{},
		logger:  logging.NewNop(),
		now:     time.Now,
		ready:   make(chan struct{}),
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("site", cfg.SiteName)
	c.state = domain.NewLoadState(c.now())
	c.site = loader.Fallback()
	if v, ok := c.site.Experiment.Variant(c.site.FallbackVariant()); ok {
		c.variant = v
	}
	return c
}

// Start leaves PRELOAD. It is a no-op after the first call.
//
// With an InitialSite the whole resolution runs before Start returns.
// Otherwise the fetch runs in a goroutine, raced by the timer; use Ready,
// Wait or Updates to observe the outcome.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase != domain.PhasePreload {
		c.mu.Unlock()
		return
	}
	c.state = Next(c.state, EventBeginLoad, c.now())
	c.mu.Unlock()

	req := c.request(c.cfg.Variant)

	if c.cfg.InitialSite != nil {
		site, variant, err := c.loader.Init(ctx, c.sess, c.cfg.InitialSite.Clone(), req)
		outcome := OutcomeReady
		if err != nil {
			outcome = OutcomeError
		}
		c.finish(ctx, site, variant, outcome)
		if err != nil {
			c.handleError(err)
		}
		return
	}

	if d := c.cfg.EffectiveTimeout(); d > 0 {
		c.mu.Lock()
		c.timer = time.AfterFunc(d, c.onTimeout)
		c.mu.Unlock()
	}
	go c.fetch(ctx, req)
}

func (c *Controller) request(variant string) Request {
	return Request{
		SiteName: c.cfg.SiteName,
		Variant:  variant,
		Fallback: c.cfg.FallbackVariant,
	}
}

func (c *Controller) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) onTimeout() {
	if !c.race.CompareAndSwap(raceOpen, raceTimedOut) {
		return
	}
	c.mu.Lock()
	c.state = Next(c.state, EventTimedOut, c.now())
	c.mu.Unlock()
	c.logger.Debug("site load timed out, waiting for fetch to settle")
}

func (c *Controller) fetch(ctx context.Context, req Request) {
	site, variant, err := c.loader.Load(ctx, c.sess, req)

	if c.race.CompareAndSwap(raceOpen, raceFetched) {
		c.stopTimer()
		outcome := OutcomeReady
		if err != nil {
			outcome = OutcomeError
		}
		c.finish(ctx, site, variant, outcome)
		if err != nil {
			c.handleError(err)
		}
		return
	}

	// The timer won: whatever the fetch produced is discarded.
	if err != nil {
		c.logger.Debug("late fetch failed", "err", err)
	}
	site, variant, _ = c.loader.Init(ctx, c.sess, c.loader.Fallback(), Request{Fallback: req.Fallback})
	c.finish(ctx, site, variant, OutcomeTimeout)

	c.mu.Lock()
	elapsed := c.state.Duration()
	c.mu.Unlock()
	c.handleError(&domain.TimeoutError{Site: c.cfg.SiteName, Duration: elapsed})
}

// finish is the single funnel of both paths: exposure, READY, broadcast.
func (c *Controller) finish(ctx context.Context, site domain.Site, variant domain.Variant, outcome string) {
	c.mu.Lock()
	c.site = site
	c.variant = variant
	c.mu.Unlock()

	c.markVariantPresented(ctx)

	c.mu.Lock()
	c.state = Next(c.state, EventResolved, c.now())
	elapsed := c.state.Duration()
	c.mu.Unlock()

	if o, ok := c.sink.(ports.LoadObserver); ok {
		o.ObserveLoad(c.cfg.SiteName, outcome, elapsed)
	}
	c.logger.Debug("site ready", "experiment", site.Experiment.ID, "variant", variant.Name, "outcome", outcome, "duration", elapsed)

	c.broadcastReady()
}

// markVariantPresented persists the assignment and sinks one exposure,
// at most once per controller.
func (c *Controller) markVariantPresented(ctx context.Context) {
	c.mu.Lock()
	if c.state.ExposureRecorded {
		c.mu.Unlock()
		return
	}
	c.state = Next(c.state, EventExposureRecorded, c.now())
	snap := c.snapshotLocked()
	c.mu.Unlock()
	// The exposure describes the resolved context; the phase reaches READY
	// right after it is sunk.
	snap.Ready = true

	if c.sess != nil {
		if err := c.sess.PersistVariant(ctx, snap.Site.Experiment.ID, snap.Variant.Name); err != nil {
			c.logger.Warn("session not saved", "experiment", snap.Site.Experiment.ID, "err", err)
		}
	}
	c.sinkEvent(snap, domain.EventExposures)
}

func (c *Controller) broadcastReady() {
	c.readyOnce.Do(func() {
		close(c.ready)
		snap := c.Snapshot()
		c.safeCall("onReady", func() { c.host.OnReady(snap) })
	})
	c.notify()
}

func (c *Controller) handleError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Warn("bandit context received error", "err", err)
	snap := c.Snapshot()
	c.safeCall("onError", func() { c.host.OnError(err, snap) })
}

// safeCall runs a host callback, recovering panics.
func (c *Controller) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("host callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

func (c *Controller) sinkEvent(snap domain.Snapshot, name string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("metrics sink panicked", "event", name, "panic", r)
		}
	}()
	c.sink.SinkEvent(snap, name)
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Render is one render pass. It returns the snapshot and whether the consumer
// should show its content. With Defer the first pass returns false and
// schedules a re-render notification.
func (c *Controller) Render() (domain.Snapshot, bool) {
	c.mu.Lock()
	first := c.state.RenderCount == 0
	c.state = Next(c.state, EventRendered, c.now())
	if c.cfg.Defer && first {
		c.mu.Unlock()
		time.AfterFunc(0, c.notify)
		return domain.Snapshot{}, false
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return snap, snap.Ready
}

// Select reloads the site with variant taking priority over affinity and
// the draw, persists it and replaces the live context. On failure the live
// context is kept and the fallback site is returned with the error.
func (c *Controller) Select(ctx context.Context, variant string) (domain.Site, error) {
	site, v, err := c.loader.Load(ctx, c.sess, c.request(variant))
	if err != nil {
		c.handleError(err)
		return c.loader.Fallback(), err
	}

	c.mu.Lock()
	c.site = site
	c.variant = v
	c.mu.Unlock()

	if c.sess != nil {
		if err := c.sess.PersistVariant(ctx, site.Experiment.ID, v.Name); err != nil {
			c.logger.Warn("session not saved", "experiment", site.Experiment.ID, "err", err)
		}
	}

	c.notify()
	c.safeCall("onSelect", func() { c.host.OnSelect(v.Name) })
	return site, nil
}

// Sink records a named event for the current variant.
func (c *Controller) Sink(name string) {
	c.sinkEvent(c.Snapshot(), name)
}

// Convert records a conversion for the current variant.
func (c *Controller) Convert() {
	c.Sink(domain.EventConversions)
}

// Close stops the timer and performs the final flush. Flush failures are
// logged and swallowed. Safe to call more than once.
func (c *Controller) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		c.stopTimer()
		if err := c.sink.Flush(ctx, true); err != nil {
			c.logger.Warn("final metrics flush failed", "err", err)
		}
	})
}

// Ready is closed once the context reaches READY.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Updates signals every change a consumer should re-render for.
// Notifications coalesce.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Wait blocks until READY or ctx is done.
func (c *Controller) Wait(ctx context.Context) (domain.Snapshot, error) {
	select {
	case <-c.ready:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Snapshot returns the current view of the context.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	sessionID := ""
	if c.sess != nil {
		sessionID = c.sess.ID()
	}
	return domain.Snapshot{
		SessionID: sessionID,
		Site:      c.site.Clone(),
		Variant:   c.variant,
		Ready:     c.state.Ready(),
	}
}

// State returns a copy of the LoadState.
func (c *Controller) State() domain.LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last error routed to the error handler.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

type nopSink struct{}

func (nopSink) SinkEvent(domain.Snapshot, string) {}
func (nopSink) Flush(context.Context, bool) error { return nil }
