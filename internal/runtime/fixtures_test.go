package runtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aretw0/bandit/pkg/domain"
)

func demoSite() domain.Site {
	return domain.Site{
		Name: "home",
		Experiment: domain.Experiment{
			ID: "hero",
			Variants: []domain.Variant{
				{Name: "A", Weight: domain.Weight(1)},
				{Name: "B", Weight: domain.Weight(0)},
				{Name: "C", Weight: domain.Weight(0)},
			},
		},
		DefaultVariant: "A",
	}
}

// gatedProvider blocks every Fetch until release is closed.
type gatedProvider struct {
	site    domain.Site
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func newGatedProvider(site domain.Site, err error) *gatedProvider {
	return &gatedProvider{site: site, err: err, release: make(chan struct{})}
}

func (p *gatedProvider) Fetch(ctx context.Context, siteName string) (*domain.Site, error) {
	p.calls.Add(1)
	<-p.release
	if p.err != nil {
		return nil, p.err
	}
	s := p.site.Clone()
	return &s, nil
}

func (p *gatedProvider) open() { close(p.release) }

// hangingProvider answers only when its ctx ends.
type hangingProvider struct{}

func (hangingProvider) Fetch(ctx context.Context, _ string) (*domain.Site, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var errNetwork = errors.New("connection refused")

// recordingHost captures callbacks.
type recordingHost struct {
	mu       sync.Mutex
	ready    []domain.Snapshot
	errs     []error
	selected []string

	panicOnReady bool
	panicOnError bool
}

func (h *recordingHost) OnReady(snap domain.Snapshot) {
	h.mu.Lock()
	h.ready = append(h.ready, snap)
	h.mu.Unlock()
	if h.panicOnReady {
		panic("host exploded in onReady")
	}
}

func (h *recordingHost) OnError(err error, snap domain.Snapshot) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	if h.panicOnError {
		panic("host exploded in onError")
	}
}

func (h *recordingHost) OnSelect(variant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selected = append(h.selected, variant)
}

func (h *recordingHost) counts() (ready, errs int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ready), len(h.errs)
}

func (h *recordingHost) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// failingStore is a session backend that always fails.
type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (string, error) { return "", errNetwork }
func (failingStore) Set(context.Context, string, string, string) error   { return errNetwork }
func (failingStore) Clear(context.Context, string) error                 { return errNetwork }
func (failingStore) List(context.Context) ([]string, error)              { return nil, errNetwork }
