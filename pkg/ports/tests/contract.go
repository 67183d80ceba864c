package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
)

// SiteProviderContractTest is a reusable test suite that verifies if an adapter complies with ports.SiteProvider.
// setupData must hold the sites the provider was seeded with, keyed by name.
func SiteProviderContractTest(t *testing.T, provider ports.SiteProvider, setupData map[string]domain.Site) {
	t.Helper()
	ctx := context.Background()

	t.Run("Fetch_Success", func(t *testing.T) {
		for name, expected := range setupData {
			site, err := provider.Fetch(ctx, name)
			if err != nil {
				t.Fatalf("unexpected error fetching site %s: %v", name, err)
			}
			if site.Experiment.ID != expected.Experiment.ID {
				t.Errorf("experiment mismatch for %s. got %q, want %q", name, site.Experiment.ID, expected.Experiment.ID)
			}
			if len(site.Experiment.Variants) != len(expected.Experiment.Variants) {
				t.Errorf("variant count mismatch for %s. got %d, want %d", name, len(site.Experiment.Variants), len(expected.Experiment.Variants))
			}
		}
	})

	t.Run("Fetch_NotFound", func(t *testing.T) {
		_, err := provider.Fetch(ctx, "non-existent-site")
		if !errors.Is(err, domain.ErrSiteNotFound) {
			t.Errorf("expected ErrSiteNotFound, got %v", err)
		}
	})

	t.Run("Fetch_ReturnsCopy", func(t *testing.T) {
		for name := range setupData {
			first, err := provider.Fetch(ctx, name)
			if err != nil {
				t.Fatalf("unexpected error fetching site %s: %v", name, err)
			}
			first.Experiment.Variants[0].Name = "mutated"

			second, err := provider.Fetch(ctx, name)
			if err != nil {
				t.Fatalf("unexpected error fetching site %s: %v", name, err)
			}
			if second.Experiment.Variants[0].Name == "mutated" {
				t.Errorf("provider leaked internal state for %s", name)
			}
		}
	})

	lister, ok := provider.(ports.SiteLister)
	if !ok {
		return
	}

	t.Run("ListSites", func(t *testing.T) {
		names, err := lister.ListSites(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing sites: %v", err)
		}
		if len(names) != len(setupData) {
			t.Errorf("expected %d sites, got %d", len(setupData), len(names))
		}
		lookup := make(map[string]bool)
		for _, n := range names {
			lookup[n] = true
		}
		for name := range setupData {
			if !lookup[name] {
				t.Errorf("site %s missing from list", name)
			}
		}
	})
}
