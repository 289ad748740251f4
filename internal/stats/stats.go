// Package stats provides the pure numeric routines behind pair validation:
// descriptive statistics, Pearson correlation, OLS regression, a simplified
// Dickey-Fuller stationarity test, mean-reversion half-life, and the Hurst
// exponent. All functions are stateless and never return errors; insufficient
// or degenerate input yields a neutral value (0, not-stationary, or +Inf).
package stats

import "math"

// epsilon guards divisions against effectively-zero variance.
const epsilon = 1e-10

// OLSResult holds the fitted parameters of y = alpha + beta*x.
type OLSResult struct {
	Alpha     float64
	Beta      float64
	Residuals []float64
}

// ADFResult holds the outcome of the simplified stationarity test.
type ADFResult struct {
	IsStationary  bool    `json:"is_stationary"`
	TestStat      float64 `json:"test_stat"`
	CriticalValue float64 `json:"critical_value"`
	PValue        float64 `json:"p_value"`
	Beta          float64 `json:"beta"`
}

// Mean returns the arithmetic mean, 0 for an empty series.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// Std returns the population standard deviation, 0 for an empty series.
func Std(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	sum := 0.0
	for _, v := range xs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// ZScore returns (value-mean)/std, or 0 when std is zero.
func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// alignTail truncates both series to their common trailing window.
func alignTail(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[len(a)-n:], b[len(b)-n:]
}

// Correlation returns the Pearson correlation of the common trailing window
// of a and b. It returns 0 when fewer than 2 points overlap or either side
// has zero variance.
func Correlation(a, b []float64) float64 {
	x, y := alignTail(a, b)
	n := len(x)
	if n < 2 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)
	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	denom := math.Sqrt(varX * varY)
	if denom < epsilon {
		return 0
	}
	return cov / denom
}

// OLS fits y = alpha + beta*x over the common trailing window and returns
// the parameters together with the residual series. With fewer than 2 points
// or zero x-variance it degenerates to {Alpha: 0, Beta: 1, Residuals: []}.
func OLS(x, y []float64) OLSResult {
	xs, ys := alignTail(x, y)
	n := len(xs)
	if n < 2 {
		return OLSResult{Alpha: 0, Beta: 1, Residuals: []float64{}}
	}

	meanX := Mean(xs)
	meanY := Mean(ys)
	var cov, varX float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		cov += dx * (ys[i] - meanY)
		varX += dx * dx
	}
	if varX < epsilon {
		return OLSResult{Alpha: 0, Beta: 1, Residuals: []float64{}}
	}

	beta := cov / varX
	alpha := meanY - beta*meanX
	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = ys[i] - (alpha + beta*xs[i])
	}
	return OLSResult{Alpha: alpha, Beta: beta, Residuals: residuals}
}

// adfMinPoints is the smallest series the stationarity test accepts.
const adfMinPoints = 30

// criticalValue maps a significance level to the approximate Dickey-Fuller
// critical value used by the test.
func criticalValue(significance float64) float64 {
	switch {
	case significance <= 0.01:
		return -3.43
	case significance <= 0.05:
		return -2.86
	default:
		return -2.57
	}
}

// ADFTest runs a simplified Dickey-Fuller stationarity test: the first
// difference of the series is regressed on its own lag-1 level,
// dz[t] = alpha + beta*z[t-1], and beta's t-statistic is compared against a
// fixed critical value. No augmentation terms and no asymptotic table, so the
// result is an approximation. Series shorter than 30 points report
// not-stationary with neutral statistics.
func ADFTest(series []float64, significance float64) ADFResult {
	crit := criticalValue(significance)
	if len(series) < adfMinPoints {
		return ADFResult{IsStationary: false, TestStat: 0, CriticalValue: crit, PValue: 1, Beta: 0}
	}

	n := len(series) - 1
	lagged := series[:n]
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = series[i+1] - series[i]
	}

	fit := OLS(lagged, diffs)
	laggedStd := Std(lagged)
	residStd := Std(fit.Residuals)
	if laggedStd < epsilon || residStd < epsilon {
		return ADFResult{IsStationary: false, TestStat: 0, CriticalValue: crit, PValue: 1, Beta: fit.Beta}
	}

	se := residStd / (laggedStd * math.Sqrt(float64(n)))
	tStat := fit.Beta / se

	pValue := 0.5
	switch {
	case tStat < -3.43:
		pValue = 0.01
	case tStat < -2.86:
		pValue = 0.05
	case tStat < -2.57:
		pValue = 0.10
	}

	return ADFResult{
		IsStationary:  tStat < crit,
		TestStat:      tStat,
		CriticalValue: crit,
		PValue:        pValue,
		Beta:          fit.Beta,
	}
}

// HalfLife estimates the mean-reversion half-life from the lag-1 AR fit
// dz[t] = alpha + beta*z[t-1] with lambda = -beta:
//
//	halfLife = -ln(2) / ln(1-lambda)
//
// It returns +Inf when lambda <= 0 (no reversion) or lambda >= 1 (explosive).
func HalfLife(series []float64) float64 {
	n := len(series) - 1
	if n < 1 {
		return math.Inf(1)
	}
	lagged := series[:n]
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = series[i+1] - series[i]
	}

	fit := OLS(lagged, diffs)
	lambda := -fit.Beta
	if lambda <= 0 || lambda >= 1 {
		return math.Inf(1)
	}
	return -math.Ln2 / math.Log(1-lambda)
}

// HurstExponent estimates the Hurst exponent via rescaled-range analysis.
// For each lag in [2, maxLag] the series is split into floor(n/lag)
// contiguous blocks; each block contributes its range of cumulative mean
// deviations divided by its standard deviation, and the block average becomes
// R/S(lag). The slope of log(R/S) against log(lag) is the exponent, clamped
// to [0,1]. Series shorter than 2*maxLag, or with fewer than 3 usable lag
// points, report 0.5 (random walk).
func HurstExponent(series []float64, maxLag int) float64 {
	if maxLag < 2 || len(series) < 2*maxLag {
		return 0.5
	}

	var logLags, logRS []float64
	for lag := 2; lag <= maxLag; lag++ {
		nBlocks := len(series) / lag
		if nBlocks < 1 {
			continue
		}
		sum := 0.0
		valid := 0
		for b := 0; b < nBlocks; b++ {
			block := series[b*lag : (b+1)*lag]
			m := Mean(block)
			std := Std(block)
			if std < epsilon {
				continue
			}
			cum := 0.0
			minC := math.Inf(1)
			maxC := math.Inf(-1)
			for _, v := range block {
				cum += v - m
				if cum < minC {
					minC = cum
				}
				if cum > maxC {
					maxC = cum
				}
			}
			sum += (maxC - minC) / std
			valid++
		}
		if valid == 0 {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logRS = append(logRS, math.Log(sum/float64(valid)))
	}

	if len(logLags) < 3 {
		return 0.5
	}

	fit := OLS(logLags, logRS)
	h := fit.Beta
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	return h
}
