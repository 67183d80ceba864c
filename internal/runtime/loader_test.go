package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/bandit/internal/runtime"
	"github.com/aretw0/bandit/pkg/adapters/memory"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/selection"
	"github.com/aretw0/bandit/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func fixedSelector(sample float64) *selection.Selector {
	return selection.New(selection.WithRand(func() float64 { return sample }))
}

func TestLoader_InitPriority(t *testing.T) {
	ctx := context.Background()
	loader := runtime.NewLoader(memory.NewProvider(), runtime.WithSelector(fixedSelector(0.5)))
	sess := session.NewManager(memory.NewStore()).Session("s1")

	t.Run("Draw", func(t *testing.T) {
		_, v, err := loader.Init(ctx, sess, demoSite(), runtime.Request{})
		require.NoError(t, err)
		assert.Equal(t, "A", v.Name, "the only non-zero weight wins")
	})

	t.Run("Session Affinity Beats Weights", func(t *testing.T) {
		require.NoError(t, sess.PersistVariant(ctx, "hero", "B"))
		_, v, err := loader.Init(ctx, sess, demoSite(), runtime.Request{})
		require.NoError(t, err)
		assert.Equal(t, "B", v.Name)
	})

	t.Run("Requested Beats Affinity", func(t *testing.T) {
		_, v, err := loader.Init(ctx, sess, demoSite(), runtime.Request{Variant: "C"})
		require.NoError(t, err)
		assert.Equal(t, "C", v.Name)
	})

	t.Run("Unknown Requested Is Ignored", func(t *testing.T) {
		_, v, err := loader.Init(ctx, sess, demoSite(), runtime.Request{Variant: "Z"})
		require.NoError(t, err)
		assert.Equal(t, "B", v.Name)
	})

	t.Run("Stale Affinity Is Ignored", func(t *testing.T) {
		stale := session.NewManager(memory.NewStore()).Session("s2")
		require.NoError(t, stale.PersistVariant(ctx, "hero", "removed-variant"))
		_, v, err := loader.Init(ctx, stale, demoSite(), runtime.Request{})
		require.NoError(t, err)
		assert.Equal(t, "A", v.Name)
	})

	t.Run("Nil Session", func(t *testing.T) {
		_, v, err := loader.Init(ctx, nil, demoSite(), runtime.Request{})
		require.NoError(t, err)
		assert.Equal(t, "A", v.Name)
	})
}

func TestLoader_DegenerateWeightsUseFallback(t *testing.T) {
	ctx := context.Background()
	site := demoSite()
	for i := range site.Experiment.Variants {
		site.Experiment.Variants[i].Weight = nil
	}

	// 0.99995 is above the 0.9999 total of a three way split.
	loader := runtime.NewLoader(memory.NewProvider(), runtime.WithSelector(fixedSelector(0.99995)))

	_, v, err := loader.Init(ctx, nil, site, runtime.Request{})
	require.NoError(t, err)
	assert.Equal(t, "A", v.Name, "site default")

	_, v, err = loader.Init(ctx, nil, site, runtime.Request{Fallback: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", v.Name, "configured fallback name")
}

func TestLoader_InvalidSite(t *testing.T) {
	loader := runtime.NewLoader(memory.NewProvider())

	site, v, err := loader.Init(context.Background(), nil, domain.Site{Name: "broken"}, runtime.Request{Variant: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidSite)
	assert.Equal(t, domain.DefaultName, site.Experiment.ID)
	assert.Equal(t, domain.DefaultName, v.Name)
}

func TestLoader_LoadTransportError(t *testing.T) {
	loader := runtime.NewLoader(memory.NewProvider())

	site, v, err := loader.Load(context.Background(), nil, runtime.Request{SiteName: "missing"})
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
	assert.Equal(t, domain.DefaultName, site.Name)
	assert.Equal(t, domain.DefaultName, v.Name)
}

func TestLoader_CustomFallbackSite(t *testing.T) {
	fallback := domain.Site{
		Name:       "safe",
		Experiment: domain.Experiment{ID: "safe-exp", Variants: []domain.Variant{{Name: "control"}}},
	}
	loader := runtime.NewLoader(memory.NewProvider(), runtime.WithFallbackSite(fallback))

	site, v, err := loader.Load(context.Background(), nil, runtime.Request{SiteName: "missing"})
	assert.Error(t, err)
	assert.Equal(t, "safe", site.Name)
	assert.Equal(t, "control", v.Name)

	// Invalid fallbacks are ignored.
	loader = runtime.NewLoader(memory.NewProvider(), runtime.WithFallbackSite(domain.Site{}))
	assert.Equal(t, domain.DefaultName, loader.Fallback().Name)
}

func TestLoader_FetchDeduplicates(t *testing.T) {
	provider := newGatedProvider(demoSite(), nil)
	loader := runtime.NewLoader(provider)

	var wg sync.WaitGroup
	results := make([]domain.Site, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			site, err := loader.Fetch(context.Background(), "home")
			assert.NoError(t, err)
			results[i] = site
		}(i)
	}

	// Let every caller join the flight before the provider answers.
	time.Sleep(50 * time.Millisecond)
	provider.open()
	wg.Wait()

	assert.Equal(t, int32(1), provider.calls.Load())

	// Shared results are independent copies.
	results[0].Experiment.Variants[0].Name = "mutated"
	assert.Equal(t, "A", results[1].Experiment.Variants[0].Name)
}

func TestLoader_FetchCancelledCallerDoesNotFailOthers(t *testing.T) {
	provider := newGatedProvider(demoSite(), nil)
	loader := runtime.NewLoader(provider)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := loader.Fetch(first, "home")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, time.Millisecond)

	var got domain.Site
	secondErr := make(chan error, 1)
	go func() {
		site, err := loader.Fetch(context.Background(), "home")
		got = site
		secondErr <- err
	}()
	// Let the second caller join the flight.
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)

	provider.open()
	require.NoError(t, <-secondErr)
	assert.Equal(t, "home", got.Name)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestLoader_FetchTimeout(t *testing.T) {
	loader := runtime.NewLoader(hangingProvider{}, runtime.WithFetchTimeout(20*time.Millisecond))

	_, err := loader.Fetch(context.Background(), "home")
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoader_FetchSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	loader := runtime.NewLoader(memory.NewProvider(demoSite()), runtime.WithTracerProvider(tp))

	_, err := loader.Fetch(context.Background(), "home")
	require.NoError(t, err)
	_, err = loader.Fetch(context.Background(), "missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "runtime.FetchSite", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.NotEmpty(t, spans[1].Events(), "the error is recorded on the span")
}

// MockProvider for asserting provider calls.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Fetch(ctx context.Context, siteName string) (*domain.Site, error) {
	args := m.Called(ctx, siteName)
	site, _ := args.Get(0).(*domain.Site)
	return site, args.Error(1)
}

func TestLoader_LoadUsesProvider(t *testing.T) {
	site := demoSite()
	provider := &MockProvider{}
	provider.On("Fetch", mock.Anything, "home").Return(&site, nil).Once()
	provider.On("Fetch", mock.Anything, "broken").Return(nil, nil).Once()

	loader := runtime.NewLoader(provider)

	got, v, err := loader.Load(context.Background(), nil, runtime.Request{SiteName: "home"})
	require.NoError(t, err)
	assert.Equal(t, "home", got.Name)
	assert.Equal(t, "A", v.Name)

	// A provider answering nil without error is a transport failure.
	got, _, err = loader.Load(context.Background(), nil, runtime.Request{SiteName: "broken"})
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, domain.DefaultName, got.Name)

	provider.AssertExpectations(t)
}
