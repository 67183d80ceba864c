package loam

import "github.com/aretw0/bandit/pkg/domain"

// SiteMetadata is the document shape of a site definition.
// It uses "mapstructure" tags so YAML, JSON and Markdown frontmatter decode alike.
type SiteMetadata struct {
	Name           string             `json:"name" mapstructure:"name"`
	Experiment     ExperimentMetadata `json:"experiment" mapstructure:"experiment"`
	DefaultVariant string             `json:"default_variant" mapstructure:"default_variant"`
}

// ExperimentMetadata is the experiment block of a site document.
type ExperimentMetadata struct {
	ID       string            `json:"id" mapstructure:"id"`
	Variants []VariantMetadata `json:"variants" mapstructure:"variants"`
}

// VariantMetadata is one variant entry. A missing prob stays nil.
type VariantMetadata struct {
	Name string   `json:"name" mapstructure:"name"`
	Prob *float64 `json:"prob,omitempty" mapstructure:"prob"`
}

// IsZero reports a document that declares nothing, e.g. a README.
func (m SiteMetadata) IsZero() bool {
	return m.Name == "" && m.DefaultVariant == "" &&
		m.Experiment.ID == "" && len(m.Experiment.Variants) == 0
}

// Site converts the document into a domain.Site.
func (m SiteMetadata) Site() domain.Site {
	site := domain.Site{
		Name:           m.Name,
		DefaultVariant: m.DefaultVariant,
		Experiment: domain.Experiment{
			ID:       m.Experiment.ID,
			Variants: make([]domain.Variant, len(m.Experiment.Variants)),
		},
	}
	for i, v := range m.Experiment.Variants {
		site.Experiment.Variants[i] = domain.Variant{Name: v.Name}
		if v.Prob != nil {
			site.Experiment.Variants[i].Weight = domain.Weight(*v.Prob)
		}
	}
	return site
}
