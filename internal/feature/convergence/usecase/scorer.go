package usecase

import (
	"fmt"
	"math"
	"time"

	"signal_backend/internal/feature/convergence/domain/entity"
)

// Scoring weights.
const (
	zoneWeight   = 0.35
	trendWeight  = 0.35
	candleWeight = 0.30

	volumeShare     = 0.6
	bodyShare       = 0.4
	volumeReference = 100.0
	bodyReference   = 100.0

	bullishFactor  = 1.1
	bearishFactor  = 0.9
	slopeReference = 100.0
	slopeSpan      = 0.2
	slopeBase      = 0.9

	// DefaultSignalStrength replaces a strength that could not be computed.
	DefaultSignalStrength = 0.5
)

// Score turns a match into a ScoredSignal. It never fails: a score that cannot be
// computed falls back to its default and a scoring warning is returned instead.
// When the combined score fails it takes this record's signal strength.
func Score(pair entity.Pair, m entity.Match, createdAt time.Time) (entity.ScoredSignal, []entity.Warning) {
	var warnings []entity.Warning

	strength, err := signalStrength(m)
	if err != nil {
		strength = DefaultSignalStrength
		warnings = append(warnings, entity.Warning{
			Kind:        entity.WarningScoring,
			CandleIndex: m.Candle.Index,
			Message:     "signal_strength: " + err.Error(),
		})
	}
	combined, err := combinedScore(strength, m.Trend)
	if err != nil {
		combined = strength
		warnings = append(warnings, entity.Warning{
			Kind:        entity.WarningScoring,
			CandleIndex: m.Candle.Index,
			Message:     "combined_score: " + err.Error(),
		})
	}

	c, z, t := m.Candle, m.Zone, m.Trend
	return entity.ScoredSignal{
		Symbol:         pair.Symbol,
		Timeframe:      pair.Timeframe,
		CandleIndex:    c.Index,
		Timestamp:      candleTime(c.Index, z, createdAt),
		Open:           c.Open,
		High:           c.High,
		Low:            c.Low,
		Close:          c.Close,
		Volume:         c.Volume,
		BodyPercentage: c.BodyPercentage,

		ZoneID:           z.ID,
		ZoneQualityScore: z.QualityScore,
		ZoneStart:        z.StartTime,
		ZoneEnd:          z.EndTime,

		TrendID:        t.ID,
		TrendDirection: t.Direction,
		TrendSlope:     t.Slope,
		TrendRSquared:  t.RSquared,
		TrendStart:     t.StartTime,
		TrendEnd:       t.EndTime,

		SignalStrength: strength,
		CombinedScore:  combined,
		CreatedAt:      createdAt,
	}, warnings
}

func signalStrength(m entity.Match) (float64, error) {
	inputs := []struct {
		name string
		v    float64
	}{
		{"zone quality_score", m.Zone.QualityScore},
		{"trend r_squared", m.Trend.RSquared},
		{"candle volume", m.Candle.Volume},
		{"candle body_percentage", m.Candle.BodyPercentage},
	}
	for _, in := range inputs {
		if !finite(in.v) {
			return 0, fmt.Errorf("%s is %v", in.name, in.v)
		}
	}

	zone := clamp(m.Zone.QualityScore, 0, 1)
	trend := clamp(m.Trend.RSquared, 0, 1)
	candle := volumeShare*clamp(m.Candle.Volume/volumeReference, 0, 1) +
		bodyShare*clamp(m.Candle.BodyPercentage/bodyReference, 0, 1)

	s := round4(zoneWeight*zone + trendWeight*trend + candleWeight*candle)
	if !finite(s) {
		return 0, fmt.Errorf("result is %v", s)
	}
	return s, nil
}

func combinedScore(strength float64, t entity.MiniTrend) (float64, error) {
	if !finite(t.Slope) {
		return 0, fmt.Errorf("trend slope is %v", t.Slope)
	}
	direction := bearishFactor
	if t.Direction == entity.Bullish {
		direction = bullishFactor
	}
	slope := clamp(math.Abs(t.Slope)/slopeReference, 0, 1)*slopeSpan + slopeBase

	c := round4(math.Min(1, strength*direction*slope))
	if !finite(c) {
		return 0, fmt.Errorf("result is %v", c)
	}
	return c, nil
}

// candleTime spreads the zone's time span evenly over its bars and returns the
// time of the bar at index. Zones without usable times fall back to their start,
// then to createdAt.
func candleTime(index int, z entity.AccumulationZone, createdAt time.Time) time.Time {
	if z.StartTime.IsZero() {
		return createdAt
	}
	bars := z.EndIdx - z.StartIdx + 1
	offset := index - z.StartIdx
	if bars <= 0 || offset < 0 || !z.EndTime.After(z.StartTime) {
		return z.StartTime
	}
	perBar := z.EndTime.Sub(z.StartTime) / time.Duration(bars)
	return z.StartTime.Add(time.Duration(offset) * perBar)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
