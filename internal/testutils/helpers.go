package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// HomeSiteYAML defines site "home": experiment "hero" where A always wins.
const HomeSiteYAML = `
experiment:
  id: hero
  variants:
    - name: A
      prob: 1
    - name: B
      prob: 0
default_variant: A
`

// SetupSitesDir creates a temporary sites directory holding files, keyed by
// file name. It fails the test immediately on error.
func SetupSitesDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644), "failed to write %s", name)
	}
	return dir
}
