package ports

import (
	"context"

	"github.com/aretw0/bandit/pkg/domain"
)

// SiteProvider retrieves site definitions.
// Implementations return domain.ErrSiteNotFound when the name is unknown.
// The returned Site is owned by the caller.
type SiteProvider interface {
	Fetch(ctx context.Context, siteName string) (*domain.Site, error)
}

// SiteLister is implemented by providers that can enumerate their sites.
type SiteLister interface {
	ListSites(ctx context.Context) ([]string, error)
}
