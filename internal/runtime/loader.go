package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
	"github.com/aretw0/bandit/pkg/selection"
	"github.com/aretw0/bandit/pkg/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "bandit.runtime"

// DefaultFetchTimeout bounds one shared provider call.
const DefaultFetchTimeout = 10 * time.Second

// Request describes one variant resolution.
type Request struct {
	SiteName string
	// Variant, when set and part of the experiment, wins over affinity and the draw.
	Variant string
	// Fallback is the variant name used when the draw misses.
	// Empty means the site's default variant.
	Fallback string
}

// Loader fetches sites and resolves the variant for a session.
// It is shared by every Controller of a process.
type Loader struct {
	provider ports.SiteProvider
	selector *selection.Selector
	fallback domain.Site
	logger   *slog.Logger
	tracer   trace.Tracer

	fetchTimeout time.Duration
	flight       singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithSelector replaces the default random selector.
func WithSelector(s *selection.Selector) LoaderOption {
	return func(l *Loader) {
		l.selector = s
	}
}

// WithFallbackSite replaces domain.DefaultSite as the site used on failure.
// An invalid site is ignored.
func WithFallbackSite(site domain.Site) LoaderOption {
	return func(l *Loader) {
		if site.Validate() == nil {
			l.fallback = site.Clone()
		}
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithTracerProvider sets the provider for fetch spans. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) LoaderOption {
	return func(l *Loader) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout. Zero or negative is ignored.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

// NewLoader creates a Loader over provider.
func NewLoader(provider ports.SiteProvider, opts ...LoaderOption) *Loader {
	l := &Loader{
		provider: provider,
		selector: selection.New(),
		fallback: domain.DefaultSite(),
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(tracerName),

		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fallback returns a copy of the fallback site.
func (l *Loader) Fallback() domain.Site {
	return l.fallback.Clone()
}

// Fetch retrieves and validates a site. Concurrent calls for the same name
// share one provider call; that call is detached from any single caller's
// cancellation and bounded by the fetch timeout instead. A caller whose ctx
// ends stops waiting without affecting the others.
// Errors wrap domain.ErrTransport or domain.ErrInvalidSite.
func (l *Loader) Fetch(ctx context.Context, siteName string) (domain.Site, error) {
	ctx, span := l.tracer.Start(ctx, "runtime.FetchSite",
		trace.WithAttributes(attribute.String("bandit.site", siteName)),
	)
	defer span.End()

	detached := context.WithoutCancel(ctx)
	ch := l.flight.DoChan(siteName, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(detached, l.fetchTimeout)
		defer cancel()

		site, err := l.provider.Fetch(fetchCtx, siteName)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %w", domain.ErrTransport, siteName, err)
		}
		if site == nil {
			return nil, fmt.Errorf("%w: provider returned no site for %s", domain.ErrTransport, siteName)
		}
		if err := site.Validate(); err != nil {
			return nil, err
		}
		return *site, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: fmt.Errorf("%w: fetch %s: %w", domain.ErrTransport, siteName, ctx.Err())}
	}
	span.SetAttributes(attribute.Bool("bandit.shared", res.Shared))

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return domain.Site{}, res.Err
	}

	span.SetStatus(codes.Ok, "")
	// Callers sharing a flight must not see each other's mutations.
	return res.Val.(domain.Site).Clone(), nil
}

// Load fetches req.SiteName and resolves a variant. On failure it resolves
// against the fallback site and also returns the error.
func (l *Loader) Load(ctx context.Context, sess *session.Store, req Request) (domain.Site, domain.Variant, error) {
	site, err := l.Fetch(ctx, req.SiteName)
	if err != nil {
		l.logger.Warn("site fetch failed, using fallback site", "site", req.SiteName, "err", err)
		fb, v, _ := l.Init(ctx, sess, l.Fallback(), Request{Fallback: req.Fallback})
		return fb, v, err
	}
	return l.Init(ctx, sess, site, req)
}

// Init resolves the variant of an already known site, in priority order:
// the requested name, the session's previous assignment, a weighted draw.
// An invalid site is replaced by the fallback and domain.ErrInvalidSite returned.
func (l *Loader) Init(ctx context.Context, sess *session.Store, site domain.Site, req Request) (domain.Site, domain.Variant, error) {
	var initErr error
	if err := site.Validate(); err != nil {
		initErr = err
		site = l.Fallback()
		req.Variant = ""
	}
	exp := site.Experiment

	if req.Variant != "" {
		if v, ok := exp.Variant(req.Variant); ok {
			return site, v, initErr
		}
		l.logger.Debug("requested variant not in experiment", "experiment", exp.ID, "variant", req.Variant)
	}

	if sess != nil {
		if name, ok := sess.GetVariant(ctx, exp.ID); ok {
			if v, ok := exp.Variant(name); ok {
				return site, v, initErr
			}
			l.logger.Debug("stale session assignment ignored", "experiment", exp.ID, "variant", name)
		}
	}

	fallback := req.Fallback
	if fallback == "" {
		fallback = site.FallbackVariant()
	}
	v, ok := l.selector.SelectWithProbabilities(exp, fallback)
	if !ok {
		// Unreachable for a validated site.
		return site, domain.Variant{Name: fallback}, initErr
	}
	return site, v, initErr
}
