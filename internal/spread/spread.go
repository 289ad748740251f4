// Package spread holds the pure price-pair transforms used for signal
// generation. Each function maps two prices (plus regression parameters where
// relevant) to a single scalar; no validation is performed, garbage in passes
// through.
package spread

import "math"

// Ratio returns the plain price ratio a/b.
func Ratio(a, b float64) float64 {
	return a / b
}

// Log returns the log spread ln(a) - beta*ln(b).
func Log(a, b, beta float64) float64 {
	return math.Log(a) - beta*math.Log(b)
}

// Residual returns the regression residual a - (alpha + beta*b), the spread
// definition used by the cointegration mode.
func Residual(a, b, alpha, beta float64) float64 {
	return a - (alpha + beta*b)
}

// Percentage returns the relative spread (a-b)/b, the cross-exchange spread
// definition.
func Percentage(a, b float64) float64 {
	return (a - b) / b
}

// Basis returns the perpetual-spot basis (perp-spot)/spot.
func Basis(perp, spot float64) float64 {
	return (perp - spot) / spot
}

// Annualize scales a basis by 365/daysToExpiry.
func Annualize(basis, daysToExpiry float64) float64 {
	return basis * 365.0 / daysToExpiry
}
