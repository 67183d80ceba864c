package domain

// Probability is the normalized weight of a single variant.
type Probability struct {
	Variant string  `json:"variant"`
	P       float64 `json:"p"`
}

// ProbabilityDistribution maps variant names to normalized weights.
// It is a slice rather than a map so iteration follows experiment order.
type ProbabilityDistribution []Probability

// Get returns the probability recorded for a variant.
func (d ProbabilityDistribution) Get(name string) (float64, bool) {
	for _, p := range d {
		if p.Variant == name {
			return p.P, true
		}
	}
	return 0, false
}

// Sum adds the entries in iteration order.
// The order matters: float addition is not associative and the rounding contract
// (e.g. 0.9999 for a three way split) is defined on this order.
func (d ProbabilityDistribution) Sum() float64 {
	var sum float64
	for _, p := range d {
		sum += p.P
	}
	return sum
}

// Names returns the variant names in iteration order.
func (d ProbabilityDistribution) Names() []string {
	names := make([]string, len(d))
	for i, p := range d {
		names[i] = p.Variant
	}
	return names
}

// Map converts the distribution to a plain lookup map.
func (d ProbabilityDistribution) Map() map[string]float64 {
	m := make(map[string]float64, len(d))
	for _, p := range d {
		m[p.Variant] = p.P
	}
	return m
}
