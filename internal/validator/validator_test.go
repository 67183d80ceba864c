package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bandit/internal/testutils"
	loamAdapter "github.com/aretw0/bandit/pkg/adapters/loam"
)

func TestValidateSites(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		dir := testutils.SetupSitesDir(t, map[string]string{
			"home.yaml": testutils.HomeSiteYAML,
		})
		warnings, err := ValidateSites(ctx, loamAdapter.NewProvider(dir))
		require.NoError(t, err)
		assert.Equal(t, []string{"'home': variant 'B' is never drawn"}, warnings)
	})

	t.Run("Even Split Warning", func(t *testing.T) {
		dir := testutils.SetupSitesDir(t, map[string]string{
			"even.yaml": "experiment:\n  id: e\n  variants:\n    - name: X\n    - name: Y\n",
		})
		warnings, err := ValidateSites(ctx, loamAdapter.NewProvider(dir))
		require.NoError(t, err)
		assert.Len(t, warnings, 2)
		assert.Contains(t, warnings[1], "split evenly")
	})

	t.Run("Broken Definitions", func(t *testing.T) {
		dir := testutils.SetupSitesDir(t, map[string]string{
			"home.yaml":  testutils.HomeSiteYAML,
			"dup.yaml":   "experiment:\n  id: d\n  variants:\n    - name: A\n    - name: A\n",
			"empty.yaml": "experiment:\n  id: x\n",
		})
		_, err := ValidateSites(ctx, loamAdapter.NewProvider(dir))
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "found 2 errors"), err.Error())
		assert.Contains(t, err.Error(), "'dup'")
		assert.Contains(t, err.Error(), "'empty'")
	})

	t.Run("Collision", func(t *testing.T) {
		dir := testutils.SetupSitesDir(t, map[string]string{
			"home.yaml": testutils.HomeSiteYAML,
			"home.json": `{"experiment":{"id":"hero","variants":[{"name":"A"}]}}`,
		})
		_, err := ValidateSites(ctx, loamAdapter.NewProvider(dir))
		assert.ErrorContains(t, err, "collision detected")
	})

	t.Run("Empty Dir", func(t *testing.T) {
		_, err := ValidateSites(ctx, loamAdapter.NewProvider(t.TempDir()))
		assert.Error(t, err)
	})
}
