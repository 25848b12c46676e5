// Package pricing implements the deterministic cost model. Rates come from
// the model registry for the concrete model that actually served a request,
// never the requested one.
package pricing

import (
	"math"

	"github.com/auraforge/relay/internal/domain"
)

// Fallback per-token rates applied when a concrete model is missing from
// the registry. Pricing must never fail.
const (
	fallbackInputRate  = 1e-6
	fallbackOutputRate = 2e-6
)

const usdPrecision = 1e6 // round to 6 decimals

// Calculator implements the domain.CostModel interface.
type Calculator struct {
	registry domain.ModelRegistry
}

// NewCalculator creates a new cost calculator (DI constructor).
func NewCalculator(registry domain.ModelRegistry) *Calculator {
	return &Calculator{
		registry: registry,
	}
}

// Price returns the USD cost of a completed call, rounded to 6 decimals.
// Depends only on (concreteModel, inputTokens, outputTokens) and the
// registry rates; unknown models use the documented fallback rates.
func (c *Calculator) Price(concreteModel string, inputTokens, outputTokens int) float64 {
	inRate, outRate := fallbackInputRate, fallbackOutputRate

	if entry, err := c.registry.ResolveConcrete(concreteModel); err == nil {
		inRate, outRate = entry.InputRate, entry.OutputRate
	}

	cost := float64(inputTokens)*inRate + float64(outputTokens)*outRate
	return math.Round(cost*usdPrecision) / usdPrecision
}
