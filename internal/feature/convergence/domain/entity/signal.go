package entity

import (
	"strings"
	"time"

	"signal_backend/internal/feature/convergence/domain"
)

// Pair identifies one symbol/timeframe scope. Every run and every stored signal belongs to exactly one pair.
type Pair struct {
	Symbol    string
	Timeframe string
}

// Validate rejects pairs with an empty symbol or timeframe.
func (p Pair) Validate() error {
	if strings.TrimSpace(p.Symbol) == "" || strings.TrimSpace(p.Timeframe) == "" {
		return domain.ErrInvalidPair
	}
	return nil
}

// Key is the lock and cache key for the pair.
func (p Pair) Key() string { return p.Symbol + ":" + p.Timeframe }

func (p Pair) String() string { return p.Symbol + "-" + p.Timeframe }

// ScoredSignal is a matched triple with its scores.
// (Symbol, Timeframe, CandleIndex) is its natural key.
type ScoredSignal struct {
	Symbol         string
	Timeframe      string
	CandleIndex    int
	Timestamp      time.Time
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	BodyPercentage float64

	ZoneID           int64
	ZoneQualityScore float64
	ZoneStart        time.Time
	ZoneEnd          time.Time

	TrendID        int64
	TrendDirection Direction
	TrendSlope     float64
	TrendRSquared  float64
	TrendStart     time.Time
	TrendEnd       time.Time

	SignalStrength float64 // [0,1]
	CombinedScore  float64 // [0,1]
	CreatedAt      time.Time
}

// Band classifies a combined score for display.
type Band string

const (
	BandWeak       Band = "weak"
	BandModerate   Band = "moderate"
	BandStrong     Band = "strong"
	BandVeryStrong Band = "very_strong"
)

// BandOf returns the band for a combined score.
func BandOf(score float64) Band {
	switch {
	case score >= 0.7:
		return BandVeryStrong
	case score >= 0.6:
		return BandStrong
	case score >= 0.5:
		return BandModerate
	default:
		return BandWeak
	}
}

// WarningKind distinguishes recoverable per-record problems.
type WarningKind string

const (
	// WarningScoring means a score fell back to its default value.
	WarningScoring WarningKind = "scoring"
	// WarningDuplicateKey means a later record with an already seen natural key was dropped.
	WarningDuplicateKey WarningKind = "duplicate_key"
)

// Warning is a recoverable problem attached to one record. It never aborts a run.
type Warning struct {
	Kind        WarningKind
	CandleIndex int
	Message     string
}

// RunReport is returned for every run, successful or not.
// Written is the number of signals stored by this run; it is zero when the run failed.
type RunReport struct {
	Pair      Pair
	Matches   int
	Written   int
	Published int
	Warnings  []Warning
	Duration  time.Duration
}

// DiagnosticReport explains why a pair produces few or no signals.
type DiagnosticReport struct {
	Pair              Pair
	KeyCandles        int // candles flagged as key candles
	Zones             int
	Trends            int
	ExactMatches      []int // candle indexes matched with exact containment
	ToleranceMatches  []int // extra candle indexes that match only with widened bounds
	Tolerance         int
	QualityZones      int // zones with quality_score >= 0.5
	QualityTrends     int // trends with r_squared >= 0.45
	QualityKeyCandles int // key candles with body_percentage >= 15
}
