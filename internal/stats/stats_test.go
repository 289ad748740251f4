package stats

import (
	"math"
	"testing"
)

// sineSeries is strongly mean-reverting: the lag-1 AR fit recovers
// lambda = 1-cos(omega).
func sineSeries(n int, omega float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Sin(omega * float64(i))
	}
	return out
}

// rampSeries drifts without reverting, the degenerate "random walk" case
// for the half-life and stationarity tests.
func rampSeries(n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(i)
	}
	return out
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMeanStd(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	if got := Mean(xs); !almostEqual(got, 5, 1e-9) {
		t.Errorf("Mean = %v, want 5", got)
	}
	// Population std, not sample-corrected.
	if got := Std(xs); !almostEqual(got, 2, 1e-9) {
		t.Errorf("Std = %v, want 2", got)
	}

	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := Std(nil); got != 0 {
		t.Errorf("Std(nil) = %v, want 0", got)
	}
}

func TestZScore(t *testing.T) {
	if got := ZScore(5, 5, 2); got != 0 {
		t.Errorf("ZScore at the mean = %v, want 0", got)
	}
	if got := ZScore(7, 5, 2); !almostEqual(got, 1, 1e-9) {
		t.Errorf("ZScore = %v, want 1", got)
	}
	if got := ZScore(123, 5, 0); got != 0 {
		t.Errorf("ZScore with zero std = %v, want 0", got)
	}
}

func TestCorrelation(t *testing.T) {
	s := []float64{1.2, 3.4, 2.1, 5.6, 4.4, 6.1, 5.2, 7.7}
	neg := make([]float64, len(s))
	for i, v := range s {
		neg[i] = -v
	}

	t.Run("self", func(t *testing.T) {
		if got := Correlation(s, s); !almostEqual(got, 1, 1e-9) {
			t.Errorf("Correlation(s, s) = %v, want 1", got)
		}
	})

	t.Run("negated", func(t *testing.T) {
		if got := Correlation(s, neg); !almostEqual(got, -1, 1e-9) {
			t.Errorf("Correlation(s, -s) = %v, want -1", got)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		if got := Correlation([]float64{1}, []float64{2}); got != 0 {
			t.Errorf("Correlation with 1 point = %v, want 0", got)
		}
	})

	t.Run("zero variance", func(t *testing.T) {
		flat := []float64{3, 3, 3, 3, 3, 3, 3, 3}
		if got := Correlation(s, flat); got != 0 {
			t.Errorf("Correlation against a constant = %v, want 0", got)
		}
	})

	t.Run("trailing window", func(t *testing.T) {
		// Only the last len(s) points of the longer side should matter.
		longer := append([]float64{99, -42, 17}, s...)
		if got := Correlation(longer, s); !almostEqual(got, 1, 1e-9) {
			t.Errorf("Correlation over trailing window = %v, want 1", got)
		}
	})
}

func TestOLS(t *testing.T) {
	t.Run("recovers linear fit", func(t *testing.T) {
		x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
		y := make([]float64, len(x))
		for i, v := range x {
			y[i] = 2*v + 1
		}

		fit := OLS(x, y)
		if !almostEqual(fit.Beta, 2, 1e-9) {
			t.Errorf("Beta = %v, want 2", fit.Beta)
		}
		if !almostEqual(fit.Alpha, 1, 1e-9) {
			t.Errorf("Alpha = %v, want 1", fit.Alpha)
		}
		for i, r := range fit.Residuals {
			if !almostEqual(r, 0, 1e-9) {
				t.Errorf("Residuals[%d] = %v, want 0", i, r)
			}
		}
	})

	t.Run("degenerate short series", func(t *testing.T) {
		fit := OLS([]float64{1}, []float64{2})
		if fit.Alpha != 0 || fit.Beta != 1 || len(fit.Residuals) != 0 {
			t.Errorf("degenerate OLS = {%v %v %d residuals}, want {0 1 0 residuals}",
				fit.Alpha, fit.Beta, len(fit.Residuals))
		}
	})

	t.Run("degenerate zero x-variance", func(t *testing.T) {
		x := []float64{5, 5, 5, 5}
		y := []float64{1, 2, 3, 4}
		fit := OLS(x, y)
		if fit.Alpha != 0 || fit.Beta != 1 || len(fit.Residuals) != 0 {
			t.Errorf("zero-variance OLS = {%v %v %d residuals}, want {0 1 0 residuals}",
				fit.Alpha, fit.Beta, len(fit.Residuals))
		}
	})
}

func TestADFTest(t *testing.T) {
	t.Run("mean-reverting series is stationary", func(t *testing.T) {
		res := ADFTest(sineSeries(100, 0.8), 0.05)
		if !res.IsStationary {
			t.Errorf("IsStationary = false (t=%v), want true", res.TestStat)
		}
		if res.TestStat >= res.CriticalValue {
			t.Errorf("TestStat = %v, want < %v", res.TestStat, res.CriticalValue)
		}
		if res.Beta >= 0 {
			t.Errorf("Beta = %v, want negative for a reverting series", res.Beta)
		}
	})

	t.Run("trending series is not stationary", func(t *testing.T) {
		res := ADFTest(rampSeries(100), 0.05)
		if res.IsStationary {
			t.Errorf("IsStationary = true for a trend, want false")
		}
	})

	t.Run("short series reports neutral", func(t *testing.T) {
		res := ADFTest(sineSeries(29, 0.8), 0.05)
		if res.IsStationary || res.TestStat != 0 || res.PValue != 1 {
			t.Errorf("short-series result = %+v, want neutral not-stationary", res)
		}
	})

	t.Run("constant series reports neutral", func(t *testing.T) {
		flat := make([]float64, 50)
		for i := range flat {
			flat[i] = 7
		}
		res := ADFTest(flat, 0.05)
		if res.IsStationary {
			t.Errorf("IsStationary = true for a constant, want false")
		}
	})

	t.Run("critical value follows significance", func(t *testing.T) {
		cases := []struct {
			significance float64
			want         float64
		}{
			{0.01, -3.43},
			{0.05, -2.86},
			{0.10, -2.57},
		}
		for _, tc := range cases {
			res := ADFTest(sineSeries(100, 0.8), tc.significance)
			if res.CriticalValue != tc.want {
				t.Errorf("CriticalValue(%v) = %v, want %v", tc.significance, res.CriticalValue, tc.want)
			}
		}
	})
}

func TestHalfLife(t *testing.T) {
	t.Run("random walk has infinite half-life", func(t *testing.T) {
		if got := HalfLife(rampSeries(100)); !math.IsInf(got, 1) {
			t.Errorf("HalfLife(ramp) = %v, want +Inf", got)
		}
	})

	t.Run("mean-reverting series has finite half-life", func(t *testing.T) {
		// lambda = 1-cos(0.8) = 0.303 -> half-life about 1.9 steps.
		got := HalfLife(sineSeries(100, 0.8))
		if math.IsInf(got, 1) || got <= 0 {
			t.Fatalf("HalfLife(sine) = %v, want finite positive", got)
		}
		if got < 1.5 || got > 2.5 {
			t.Errorf("HalfLife(sine) = %v, want about 1.9", got)
		}
	})

	t.Run("short series is infinite", func(t *testing.T) {
		if got := HalfLife([]float64{1}); !math.IsInf(got, 1) {
			t.Errorf("HalfLife(1 point) = %v, want +Inf", got)
		}
	})
}

func TestHurstExponent(t *testing.T) {
	t.Run("short series falls back to 0.5", func(t *testing.T) {
		if got := HurstExponent(sineSeries(39, 0.8), 20); got != 0.5 {
			t.Errorf("HurstExponent(short) = %v, want 0.5", got)
		}
	})

	t.Run("anti-persistent series scores low", func(t *testing.T) {
		alt := make([]float64, 100)
		for i := range alt {
			if i%2 == 0 {
				alt[i] = 1
			} else {
				alt[i] = -1
			}
		}
		got := HurstExponent(alt, 20)
		if got >= 0.4 {
			t.Errorf("HurstExponent(alternating) = %v, want < 0.4", got)
		}
	})

	t.Run("trending series scores high", func(t *testing.T) {
		got := HurstExponent(rampSeries(100), 20)
		if got <= 0.6 {
			t.Errorf("HurstExponent(ramp) = %v, want > 0.6", got)
		}
	})

	t.Run("clamped to unit interval", func(t *testing.T) {
		got := HurstExponent(rampSeries(200), 20)
		if got < 0 || got > 1 {
			t.Errorf("HurstExponent = %v, want within [0,1]", got)
		}
	})
}
