package loam_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/bandit/pkg/adapters/loam"
	"github.com/aretw0/bandit/pkg/domain"
	contract "github.com/aretw0/bandit/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const homeYAML = `
experiment:
  id: hero-banner
  variants:
    - name: A
      prob: 0.25
    - name: B
      prob: 0.75
default_variant: A
`

const checkoutJSON = `{
  "name": "checkout",
  "experiment": {"id": "cta", "variants": [{"name": "green"}, {"name": "blue"}]}
}`

const promoMD = `---
experiment:
  id: promo
  variants:
    - name: on
      prob: 1
    - name: off
default_variant: off
---
Spring campaign banner.`

func writeSites(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func defaultSites(t *testing.T) string {
	return writeSites(t, map[string]string{
		"home.yaml":     homeYAML,
		"checkout.json": checkoutJSON,
		"promo.md":      promoMD,
	})
}

func TestProvider_Contract(t *testing.T) {
	provider := loam.NewProvider(defaultSites(t))

	contract.SiteProviderContractTest(t, provider, map[string]domain.Site{
		"home":     {Experiment: domain.Experiment{ID: "hero-banner", Variants: make([]domain.Variant, 2)}},
		"checkout": {Experiment: domain.Experiment{ID: "cta", Variants: make([]domain.Variant, 2)}},
		"promo":    {Experiment: domain.Experiment{ID: "promo", Variants: make([]domain.Variant, 2)}},
	})
}

func TestProvider_DecodesWeights(t *testing.T) {
	provider := loam.NewProvider(defaultSites(t))
	ctx := context.Background()

	site, err := provider.Fetch(ctx, "home")
	require.NoError(t, err)
	require.NoError(t, site.Validate())

	assert.Equal(t, "home", site.Name, "name defaults to the document id")
	assert.Equal(t, "A", site.DefaultVariant)
	require.Len(t, site.Experiment.Variants, 2)
	assert.Equal(t, 0.75, *site.Experiment.Variants[1].Weight)

	site, err = provider.Fetch(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, "checkout", site.Name)
	assert.Nil(t, site.Experiment.Variants[0].Weight, "unset weights stay unset")
}

func TestProvider_MarkdownFrontmatter(t *testing.T) {
	provider := loam.NewProvider(defaultSites(t))

	site, err := provider.Fetch(context.Background(), "promo")
	require.NoError(t, err)
	require.NoError(t, site.Validate())
	assert.Equal(t, "off", site.DefaultVariant)
	assert.Equal(t, 1.0, *site.Experiment.Variants[0].Weight, "integer weights decode as floats")
	assert.Nil(t, site.Experiment.Variants[1].Weight)
}

func TestProvider_Errors(t *testing.T) {
	dir := writeSites(t, map[string]string{
		"home.yaml":   homeYAML,
		"broken.yaml": "experiment: [",
	})
	provider := loam.NewProvider(dir)
	ctx := context.Background()

	_, err := provider.Fetch(ctx, "broken")
	assert.Error(t, err, "an unparseable document never yields a site")

	_, err = provider.Fetch(ctx, "../home")
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}

func TestProvider_MissingDirectory(t *testing.T) {
	provider := loam.NewProvider(filepath.Join(t.TempDir(), "absent"))
	ctx := context.Background()

	names, err := provider.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = provider.Fetch(ctx, "home")
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}

func TestProvider_ListDetectsCollisions(t *testing.T) {
	provider := loam.NewProvider(writeSites(t, map[string]string{
		"home.yaml": homeYAML,
		"home.json": checkoutJSON,
	}))

	_, err := provider.ListSites(context.Background())
	assert.ErrorContains(t, err, "collision detected")
}
