package leads

import (
	"fmt"
	"math"
)

// Money is an amount in micro-units of the configured currency (1 USD = 1_000_000).
// Integer arithmetic keeps budget comparisons exact.
type Money int64

const microsPerUnit = 1_000_000

// USD converts a decimal amount to Money, rounding to the nearest micro-unit.
func USD(amount float64) Money {
	return Money(math.Round(amount * microsPerUnit))
}

// Float returns the amount in whole currency units.
func (m Money) Float() float64 {
	return float64(m) / microsPerUnit
}

func (m Money) String() string {
	return fmt.Sprintf("$%.4f", m.Float())
}

// ProviderUnitCost maps an operation name to its fixed price.
type ProviderUnitCost map[string]Money
