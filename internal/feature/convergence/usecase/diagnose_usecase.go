package usecase

import (
	"context"
	"sort"

	"signal_backend/internal/feature/convergence/domain/entity"
)

const (
	// DefaultTolerance is the number of bars intervals are widened by in diagnostics.
	DefaultTolerance = 5

	qualityZoneScore  = 0.5
	qualityTrendR2    = 0.45
	qualityCandleBody = 15.0
)

// DiagnoseUsecase explains why a pair yields few signals. It never writes.
type DiagnoseUsecase struct {
	source ComponentSource
}

// NewDiagnoseUsecase は DiagnoseUsecase を作成します。
func NewDiagnoseUsecase(source ComponentSource) *DiagnoseUsecase {
	return &DiagnoseUsecase{source: source}
}

// span is an interval widened by a tolerance.
type span struct{ start, end int }

func (s span) Bounds() (int, int) { return s.start, s.end }

// Diagnose counts the components of a pair, the exact matches, and the candles that
// would match only if every zone and trend were widened by tolerance bars on both sides.
// A negative tolerance is replaced with DefaultTolerance.
func (du *DiagnoseUsecase) Diagnose(ctx context.Context, pair entity.Pair, tolerance int) (entity.DiagnosticReport, error) {
	report := entity.DiagnosticReport{Pair: pair}
	if err := pair.Validate(); err != nil {
		return report, err
	}
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	report.Tolerance = tolerance

	candles, err := du.source.KeyCandles(ctx, pair)
	if err != nil {
		return report, err
	}
	zones, err := du.source.Zones(ctx, pair)
	if err != nil {
		return report, err
	}
	trends, err := du.source.Trends(ctx, pair)
	if err != nil {
		return report, err
	}

	m, err := NewMatcher(candles, zones, trends)
	if err != nil {
		return report, err
	}
	report.KeyCandles = m.KeyCandles()
	report.Zones, report.Trends = len(zones), len(trends)

	exact := make(map[int]struct{})
	for match := range m.Matches() {
		report.ExactMatches = append(report.ExactMatches, match.Candle.Index)
		exact[match.Candle.Index] = struct{}{}
	}

	wz, err := NewIntervalIndex(entity.CollectionZones, widen(zones, tolerance))
	if err != nil {
		return report, err
	}
	wt, err := NewIntervalIndex(entity.CollectionTrends, widen(trends, tolerance))
	if err != nil {
		return report, err
	}

	keys := make([]int, 0, len(candles))
	for _, c := range candles {
		if !c.IsKeyCandle {
			continue
		}
		keys = append(keys, c.Index)
		if c.BodyPercentage >= qualityCandleBody {
			report.QualityKeyCandles++
		}
	}
	sort.Ints(keys)
	zs, ts := wz.Sweep(), wt.Sweep()
	for _, idx := range keys {
		if _, ok := exact[idx]; ok {
			continue
		}
		if _, ok := zs.Find(idx); !ok {
			continue
		}
		if _, ok := ts.Find(idx); ok {
			report.ToleranceMatches = append(report.ToleranceMatches, idx)
		}
	}

	for _, z := range zones {
		if z.QualityScore >= qualityZoneScore {
			report.QualityZones++
		}
	}
	for _, t := range trends {
		if t.RSquared >= qualityTrendR2 {
			report.QualityTrends++
		}
	}
	return report, nil
}

func widen[T Interval](items []T, tolerance int) []span {
	out := make([]span, len(items))
	for i, it := range items {
		s, e := it.Bounds()
		out[i] = span{start: max(0, s-tolerance), end: e + tolerance}
	}
	return out
}
