package vaxsight

import (
	"errors"
	"fmt"
)

var ErrNegativeTotal = errors.New("totals must be non-negative")

// Proportion is a percentage whose denominator may be zero. An invalid
// proportion is "not computable" and must not be rendered as 0%.
type Proportion struct {
	Pct   float64 `json:"pct"`
	Valid bool    `json:"valid"`
}

// String renders the proportion with two decimal places by display
// convention.
func (p Proportion) String() string {
	if !p.Valid {
		return "not computable"
	}
	return fmt.Sprintf("%.2f%%", p.Pct)
}

// Comparison relates the synthetic dataset's vaccinated total to an
// externally supplied cross-source total.
type Comparison struct {
	SyntheticTotal int        `json:"synthetic_total"`
	ExternalTotal  float64    `json:"external_total"`
	Proportion     Proportion `json:"proportion_pct"`
}

// Compare reports the synthetic total as a share of the external total.
// A zero external total leaves the proportion not computable rather than
// dividing by zero or defaulting to 0%.
func Compare(syntheticTotal int, externalTotal float64) (Comparison, error) {
	if syntheticTotal < 0 || externalTotal < 0 {
		return Comparison{}, fmt.Errorf(
			"got synthetic %d and external %f, %w",
			syntheticTotal, externalTotal, ErrNegativeTotal,
		)
	}

	c := Comparison{
		SyntheticTotal: syntheticTotal,
		ExternalTotal:  externalTotal,
	}
	if externalTotal > 0 {
		c.Proportion = Proportion{
			Pct:   float64(syntheticTotal) / externalTotal * 100,
			Valid: true,
		}
	}
	return c, nil
}

// UnvaccinatedShare computes the unvaccinated percentage of a source's
// population. A zero denominator means there is no population to take a
// rate over, so the result is not computable, which is distinct from a
// real 0% rate.
func UnvaccinatedShare(vaccinated, unvaccinated float64) (Proportion, error) {
	if vaccinated < 0 || unvaccinated < 0 {
		return Proportion{}, fmt.Errorf(
			"got vaccinated %f and unvaccinated %f, %w",
			vaccinated, unvaccinated, ErrNegativeTotal,
		)
	}

	total := vaccinated + unvaccinated
	if total == 0 {
		return Proportion{}, nil
	}
	return Proportion{Pct: unvaccinated / total * 100, Valid: true}, nil
}
