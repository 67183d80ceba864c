package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
	"github.com/aretw0/bandit/pkg/selection"
)

// Provider is a site source that can enumerate its sites.
type Provider interface {
	ports.SiteProvider
	ports.SiteLister
}

// ValidateSites loads every site of the provider and checks it.
// Hard failures are returned as one error; warnings describe definitions
// that load but will not behave as their author probably expects.
func ValidateSites(ctx context.Context, provider Provider) (warnings []string, err error) {
	names, err := provider.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	if len(names) == 0 {
		return nil, errors.New("no site definitions found")
	}

	var problems []string
	for _, name := range names {
		site, err := provider.Fetch(ctx, name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("'%s': %v", name, err))
			continue
		}
		if err := site.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("'%s': %v", name, err))
			continue
		}
		warnings = append(warnings, lint(name, *site)...)
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("found %d errors:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return warnings, nil
}

func lint(name string, site domain.Site) []string {
	var out []string
	if site.DefaultVariant == "" {
		out = append(out, fmt.Sprintf("'%s': no default_variant, the first variant is the fallback", name))
	}

	weighted := false
	for _, v := range site.Experiment.Variants {
		if v.Weight != nil {
			weighted = true
		}
	}
	if !weighted {
		out = append(out, fmt.Sprintf("'%s': no variant has a weight, traffic is split evenly", name))
		return out
	}

	for _, p := range selection.Balance(site.Experiment.Variants) {
		if p.P == 0 {
			out = append(out, fmt.Sprintf("'%s': variant '%s' is never drawn", name, p.Variant))
		}
	}
	return out
}
