package domain

import (
	"fmt"
	"math"
)

// DefaultName is the site, experiment and variant name used by DefaultSite.
const DefaultName = "default"

// ExposedListKey is the session key holding the exposed experiment ids.
// No experiment may use it as its id.
const ExposedListKey = "__all__"

// Variant is one arm of an experiment.
// A nil Weight means the weight was never set by the definition.
type Variant struct {
	Name   string   `json:"name" yaml:"name"`
	Weight *float64 `json:"prob,omitempty" yaml:"prob,omitempty"`
}

// WeightOrZero returns the raw weight, treating unset as zero.
func (v Variant) WeightOrZero() float64 {
	if v.Weight == nil {
		return 0
	}
	return *v.Weight
}

// Weight is a helper for building variants in code and tests.
func Weight(w float64) *float64 {
	return &w
}

// Experiment is an ordered set of variants. Order drives tie-breaking during selection.
type Experiment struct {
	ID       string    `json:"id" yaml:"id"`
	Variants []Variant `json:"variants" yaml:"variants"`
}

// Variant looks up a variant by name.
func (e Experiment) Variant(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Site is the unit returned by a site provider.
type Site struct {
	Name           string     `json:"name" yaml:"name"`
	Experiment     Experiment `json:"experiment" yaml:"experiment"`
	DefaultVariant string     `json:"default_variant,omitempty" yaml:"default_variant,omitempty"`
}

// DefaultSite returns the hard-coded fallback site: one experiment with a single variant.
// A new value is built on every call so callers can never mutate a shared instance.
func DefaultSite() Site {
	return Site{
		Name: DefaultName,
		Experiment: Experiment{
			ID:       DefaultName,
			Variants: []Variant{{Name: DefaultName}},
		},
		DefaultVariant: DefaultName,
	}
}

// Clone returns a deep copy of the site, weights included.
func (s Site) Clone() Site {
	out := s
	out.Experiment.Variants = make([]Variant, len(s.Experiment.Variants))
	for i, v := range s.Experiment.Variants {
		out.Experiment.Variants[i] = Variant{Name: v.Name}
		if v.Weight != nil {
			out.Experiment.Variants[i].Weight = Weight(*v.Weight)
		}
	}
	return out
}

// FallbackVariant returns the name used when selection cannot pick a winner:
// the declared default if it exists, otherwise the first variant.
func (s Site) FallbackVariant() string {
	if _, ok := s.Experiment.Variant(s.DefaultVariant); ok {
		return s.DefaultVariant
	}
	if len(s.Experiment.Variants) > 0 {
		return s.Experiment.Variants[0].Name
	}
	return ""
}

// Validate checks the structural invariants of a fetched definition.
func (s Site) Validate() error {
	if s.Experiment.ID == "" {
		return fmt.Errorf("%w: experiment id is empty", ErrInvalidSite)
	}
	if s.Experiment.ID == ExposedListKey {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSite, ErrReservedExperiment, s.Experiment.ID)
	}
	if len(s.Experiment.Variants) == 0 {
		return fmt.Errorf("%w: experiment %q has no variants", ErrInvalidSite, s.Experiment.ID)
	}

	seen := make(map[string]struct{}, len(s.Experiment.Variants))
	for _, v := range s.Experiment.Variants {
		if v.Name == "" {
			return fmt.Errorf("%w: experiment %q has a variant without name", ErrInvalidSite, s.Experiment.ID)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("%w: duplicate variant %q", ErrInvalidSite, v.Name)
		}
		seen[v.Name] = struct{}{}

		if v.Weight != nil {
			w := *v.Weight
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("%w: variant %q has non-finite weight %v", ErrInvalidSite, v.Name, w)
			}
			if w < 0 {
				return fmt.Errorf("%w: variant %q has negative weight %v", ErrInvalidSite, v.Name, w)
			}
		}
	}

	if s.DefaultVariant != "" {
		if _, ok := seen[s.DefaultVariant]; !ok {
			return fmt.Errorf("%w: default variant %q is not part of experiment %q", ErrInvalidSite, s.DefaultVariant, s.Experiment.ID)
		}
	}
	return nil
}
