package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bandit/internal/config"
	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/internal/testutils"
	"github.com/aretw0/bandit/pkg/adapters/file"
	"github.com/aretw0/bandit/pkg/domain"
)

func sitesDir(t *testing.T) string {
	return testutils.SetupSitesDir(t, map[string]string{"home.yaml": testutils.HomeSiteYAML})
}

func buildApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestBuild_Backends(t *testing.T) {
	mr := miniredis.RunT(t)

	cases := map[string]func(*config.Config){
		"Memory": func(c *config.Config) {},
		"File": func(c *config.Config) {
			c.Storage.Backend = config.BackendFile
			c.Storage.Dir = filepath.Join(t.TempDir(), "sessions")
		},
		"Redis": func(c *config.Config) {
			c.Storage.Backend = config.BackendRedis
			c.Storage.Redis.Addr = mr.Addr()
			c.Storage.Redis.Lock = true
		},
	}

	for name, tweak := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.SitesDir = sitesDir(t)
			tweak(&cfg)

			app := buildApp(t, cfg)
			ctx := context.Background()

			snap, err := app.Bandit.Assign(ctx, "s1", "home", "")
			require.NoError(t, err)
			assert.Equal(t, "A", snap.Variant.Name)

			assignments, exposed, err := app.Sessions.Assignments(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "A", assignments["hero"])
			assert.Equal(t, []string{"hero"}, exposed)
		})
	}
}

func TestBuild_MountDefaultsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SitesDir = sitesDir(t)
	cfg.SiteName = "home"
	cfg.Defer = true

	app := buildApp(t, cfg)
	ctx := context.Background()

	inst := app.Bandit.Mount("s1")
	inst.Start(ctx)
	snap, err := inst.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, inst.Err())
	assert.Equal(t, "home", snap.Site.Name, "the configured site is mounted by default")

	_, show := inst.Render()
	assert.False(t, show, "defer comes from the config")
}

func TestBuild_EncryptedSessions(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

	cfg := config.Default()
	cfg.SitesDir = sitesDir(t)
	cfg.Storage.Backend = config.BackendFile
	cfg.Storage.Dir = filepath.Join(t.TempDir(), "sessions")
	cfg.Storage.EncryptionKey = key

	app := buildApp(t, cfg)
	ctx := context.Background()

	_, err := app.Bandit.Assign(ctx, "s1", "home", "")
	require.NoError(t, err)

	assignments, _, err := app.Sessions.Assignments(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "A", assignments["hero"])

	raw, err := file.NewStore(cfg.Storage.Dir).Get(ctx, "s1", "hero")
	require.NoError(t, err)
	assert.NotEqual(t, "A", raw)

	cfg.Storage.EncryptionKey = "not-base64!"
	_, err = Build(ctx, cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = addr

	_, err = Build(context.Background(), cfg, logging.NewNop())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestBuild_EventsAndHandler(t *testing.T) {
	cfg := config.Default()
	cfg.SitesDir = sitesDir(t)
	cfg.Metrics.EventsPath = filepath.Join(t.TempDir(), "events.db")
	cfg.Metrics.BatchSize = 100

	app := buildApp(t, cfg)
	require.NotNil(t, app.Events)
	require.NotNil(t, app.Registry)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/sites/home/assign", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The final flush moves the batched exposure into SQLite.
	ctx := context.Background()
	require.NoError(t, app.Bandit.Close(ctx))

	stats, err := app.Events.Stats(ctx, "home", "hero")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "A", stats[0].Variant)
	assert.Equal(t, int64(1), stats[0].Counts[domain.EventExposures])
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogLevel = "shout"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestSignalContext_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sc := NewSignalContext(parent)
	cancel()

	<-sc.Done()
	assert.Nil(t, sc.Signal())
}
