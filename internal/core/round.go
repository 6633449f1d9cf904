// Package core provides the domain types shared by the analytics pipeline
// and its collaborators.
//
// This file contains the fixed two-decimal rounding used by every derived
// series and the currency-style text used in insight sentences.
package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds v half away from zero to two decimal places.
// Non-finite values are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Fixed2 formats v with exactly two decimals, e.g. 350 -> "350.00".
func Fixed2(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Currency formats v as "<symbol> <amount>" with two decimals, e.g. "R 350.00".
func Currency(symbol string, v float64) string {
	if symbol == "" {
		return Fixed2(v)
	}
	return symbol + " " + Fixed2(v)
}
