package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/bandit/pkg/domain"
)

// Provider implements ports.SiteProvider using an in-memory map.
// Safe for concurrent use.
type Provider struct {
	mu    sync.RWMutex
	sites map[string]domain.Site
}

// NewProvider creates a provider seeded with the given sites, keyed by Site.Name.
func NewProvider(sites ...domain.Site) *Provider {
	p := &Provider{sites: make(map[string]domain.Site, len(sites))}
	for _, s := range sites {
		p.sites[s.Name] = s.Clone()
	}
	return p
}

// Put adds or replaces a site definition.
func (p *Provider) Put(site domain.Site) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sites[site.Name] = site.Clone()
}

// Fetch returns a copy of the named site.
func (p *Provider) Fetch(ctx context.Context, siteName string) (*domain.Site, error) {
	p.mu.RLock()
	site, ok := p.sites[siteName]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSiteNotFound, siteName)
	}
	out := site.Clone()
	return &out, nil
}

// ListSites returns all site names in sorted order.
func (p *Provider) ListSites(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.sites))
	for k := range p.sites {
		names = append(names, k)
	}
	sort.Strings(names) // Deterministic order
	return names, nil
}
