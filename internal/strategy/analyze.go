package strategy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/stats"
)

// hurstMaxLag is the largest block size used by the rescaled-range fit.
const hurstMaxLag = 20

// analyzeAll revalidates every pair whose both legs have enough history and
// auto-activates pairs that pass all gates. A failing pair is logged and
// skipped; the loop continues. Returns how many pairs were refreshed.
func (s *StatArb) analyzeAll(now time.Time) int {
	refreshed := 0
	for _, p := range s.manager.AllPairs() {
		if !s.store.HasEnoughData(p.SymbolA, s.cfg.LookbackPeriod) ||
			!s.store.HasEnoughData(p.SymbolB, s.cfg.LookbackPeriod) {
			continue
		}

		st, err := s.analyzePair(p)
		if err != nil {
			s.logger.Warn("pair analysis failed",
				zap.String("pair", p.ID), zap.Error(err))
			continue
		}

		status, err := s.manager.UpdateStats(p.ID, st)
		if err != nil {
			s.logger.Warn("stats update failed",
				zap.String("pair", p.ID), zap.Error(err))
			continue
		}
		refreshed++

		if status == pairs.StatusActive && !s.manager.IsActive(p.ID) {
			if err := s.manager.ActivatePair(p.ID); err != nil {
				s.logger.Debug("activation deferred",
					zap.String("pair", p.ID), zap.Error(err))
			}
		}
	}
	return refreshed
}

// analyzePair re-estimates the full statistical relationship for one pair:
// correlation over the lookback window, OLS hedge ratio over the
// cointegration test window, residual distribution, stationarity, half-life,
// and Hurst exponent.
func (s *StatArb) analyzePair(p *pairs.Pair) (pairs.Stats, error) {
	lookA := s.store.Prices(p.SymbolA, s.cfg.LookbackPeriod)
	lookB := s.store.Prices(p.SymbolB, s.cfg.LookbackPeriod)
	if len(lookA) == 0 || len(lookB) == 0 {
		return pairs.Stats{}, fmt.Errorf("no price history for %s/%s", p.SymbolA, p.SymbolB)
	}

	testA := s.store.Prices(p.SymbolA, s.cfg.CointegrationTestPeriod)
	testB := s.store.Prices(p.SymbolB, s.cfg.CointegrationTestPeriod)

	corr := stats.Correlation(lookA, lookB)
	ols := stats.OLS(testB, testA)
	residuals := ols.Residuals

	st := pairs.Stats{
		Correlation: corr,
		Alpha:       ols.Alpha,
		Beta:        ols.Beta,
		SpreadMean:  stats.Mean(residuals),
		SpreadStd:   stats.Std(residuals),
		HalfLife:    stats.HalfLife(residuals),
		Hurst:       stats.HurstExponent(residuals, hurstMaxLag),
	}

	if len(residuals) > 0 {
		adf := stats.ADFTest(residuals, s.cfg.ADFSignificance)
		st.Stationarity = &adf
		cur := residuals[len(residuals)-1]
		st.CurrentSpread = cur
		st.CurrentZScore = stats.ZScore(cur, st.SpreadMean, st.SpreadStd)
	}

	return st, nil
}
