package selection

import (
	"math/rand/v2"

	"github.com/aretw0/bandit/pkg/domain"
)

// SelectVariant walks the distribution in order and returns the first variant whose
// cumulative probability is strictly greater than sample. When nothing qualifies
// (all zero, or rounding left a remainder above sample) fallback is returned.
func SelectVariant(dist domain.ProbabilityDistribution, sample float64, fallback string) string {
	var cumulative float64
	for _, p := range dist {
		cumulative += p.P
		if cumulative > sample {
			return p.Variant
		}
	}
	return fallback
}

// Selector draws winners using a uniform source in [0,1).
type Selector struct {
	rand func() float64
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand replaces the random source. Tests use it to pin the sample.
func WithRand(fn func() float64) Option {
	return func(s *Selector) {
		s.rand = fn
	}
}

// New creates a Selector backed by math/rand/v2 unless overridden.
func New(opts ...Option) *Selector {
	s := &Selector{rand: rand.Float64}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select draws one sample and resolves it against an already balanced distribution.
func (s *Selector) Select(dist domain.ProbabilityDistribution, fallback string) string {
	return SelectVariant(dist, s.rand(), fallback)
}

// SelectWithProbabilities balances the experiment weights and returns one of its variants.
// If the draw resolves to a name outside the experiment (the fallback was foreign or
// empty) the first variant wins. The boolean is false only for an empty experiment.
func (s *Selector) SelectWithProbabilities(exp domain.Experiment, fallback string) (domain.Variant, bool) {
	if len(exp.Variants) == 0 {
		return domain.Variant{}, false
	}

	name := s.Select(Balance(exp.Variants), fallback)
	if v, ok := exp.Variant(name); ok {
		return v, true
	}
	return exp.Variants[0], true
}
