package selection

import (
	"math"

	"github.com/aretw0/bandit/pkg/domain"
)

// precision is the number of decimal places kept in a balanced distribution.
const precision = 10000

// Round4 rounds to four decimal places, half away from zero.
func Round4(x float64) float64 {
	return math.Round(x*precision) / precision
}

// Balance normalizes variant weights into a distribution, in variant order.
//
// When every weight is unset or zero the variants share equally, each getting
// Round4(1/N); for N=3 the sum is 0.9999, not 1, and callers rely on that.
// Otherwise each weight is divided by the total. Negative and non-finite
// weights count as zero.
func Balance(variants []domain.Variant) domain.ProbabilityDistribution {
	dist := make(domain.ProbabilityDistribution, 0, len(variants))
	if len(variants) == 0 {
		return dist
	}

	var total float64
	for _, v := range variants {
		total += weightOf(v)
	}

	if total <= 0 {
		share := Round4(1 / float64(len(variants)))
		for _, v := range variants {
			dist = append(dist, domain.Probability{Variant: v.Name, P: share})
		}
		return dist
	}

	for _, v := range variants {
		dist = append(dist, domain.Probability{Variant: v.Name, P: Round4(weightOf(v) / total)})
	}
	return dist
}

func weightOf(v domain.Variant) float64 {
	w := v.WeightOrZero()
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return w
}
