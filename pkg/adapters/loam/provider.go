package loam

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/loam"

	"github.com/aretw0/bandit/pkg/domain"
)

// Provider implements ports.SiteProvider and ports.SiteLister over a Loam
// repository. The site name is the document id without extension, so
// sites/home.yaml, sites/home.json and sites/home.md all serve "home".
type Provider struct {
	dir string

	mu   sync.Mutex
	repo *loam.TypedRepository[SiteMetadata]
}

// New wraps an existing typed repository.
func New(repo *loam.TypedRepository[SiteMetadata]) *Provider {
	return &Provider{repo: repo}
}

// NewProvider reads sites from dir. The repository is opened read-only on
// first use, so a directory created after startup is picked up.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

func (p *Provider) repository() (*loam.TypedRepository[SiteMetadata], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.repo != nil {
		return p.repo, nil
	}

	absPath, err := filepath.Abs(p.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid sites path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, err
	}

	// The provider never writes: read-only keeps Loam out of its sandbox mode.
	repo, err := loam.Init(absPath,
		loam.WithReadOnly(true),
		loam.WithVersioning(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	p.repo = loam.NewTypedRepository[SiteMetadata](repo)
	return p.repo, nil
}

// Fetch loads and converts the named site. Documents are read on every call,
// so edits are picked up without a restart.
func (p *Provider) Fetch(ctx context.Context, siteName string) (*domain.Site, error) {
	if siteName == "" || strings.ContainsAny(siteName, `/\`) || strings.HasPrefix(siteName, ".") {
		return nil, fmt.Errorf("%w: %q", domain.ErrSiteNotFound, siteName)
	}

	repo, err := p.repository()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSiteNotFound, siteName)
	}
	if err != nil {
		return nil, err
	}

	doc, err := repo.Get(ctx, siteName)
	if err != nil {
		if p.missing(ctx, repo, siteName, err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSiteNotFound, siteName)
		}
		return nil, fmt.Errorf("loam get failed for %s: %w", siteName, err)
	}
	if doc.Data.IsZero() {
		return nil, fmt.Errorf("%w: %s", domain.ErrSiteNotFound, siteName)
	}

	site := doc.Data.Site()
	if site.Name == "" {
		site.Name = siteName
	}
	return &site, nil
}

// missing tells a document that does not exist apart from one that failed to load.
func (p *Provider) missing(ctx context.Context, repo *loam.TypedRepository[SiteMetadata], siteName string, getErr error) bool {
	if errors.Is(getErr, fs.ErrNotExist) {
		return true
	}
	ids, err := listIDs(ctx, repo)
	if err != nil {
		return false
	}
	_, ok := ids[siteName]
	return !ok
}

// ListSites returns the sorted names of every site document.
// Two documents resolving to the same name are reported as an error.
func (p *Provider) ListSites(ctx context.Context) ([]string, error) {
	repo, err := p.repository()
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids, err := listIDs(ctx, repo)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for id := range ids {
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}

// listIDs maps normalized site names to the document id they come from.
// Documents without any site field are skipped.
func listIDs(ctx context.Context, repo *loam.TypedRepository[SiteMetadata]) (map[string]string, error) {
	docs, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	for _, doc := range docs {
		if doc.Data.IsZero() {
			continue
		}
		id := trimExtension(doc.ID)
		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: site '%s' is defined in both '%s' and '%s'", id, existing, doc.ID)
		}
		seen[id] = doc.ID
	}
	return seen, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
