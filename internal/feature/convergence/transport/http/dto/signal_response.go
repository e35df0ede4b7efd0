package dto

import (
	"time"

	"signal_backend/internal/feature/convergence/domain/entity"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SignalResponse はトリプルシグナル1件のレスポンスDTOです。
type SignalResponse struct {
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	CandleIndex    int       `json:"candle_index"`
	Timestamp      time.Time `json:"timestamp"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	BodyPercentage float64   `json:"body_percentage"`

	ZoneID           int64     `json:"zone_id"`
	ZoneQualityScore float64   `json:"zone_quality_score"`
	ZoneStart        time.Time `json:"zone_start"`
	ZoneEnd          time.Time `json:"zone_end"`

	TrendID        int64     `json:"trend_id"`
	TrendDirection string    `json:"trend_direction"`
	TrendSlope     float64   `json:"trend_slope"`
	TrendRSquared  float64   `json:"trend_r_squared"`
	TrendStart     time.Time `json:"trend_start"`
	TrendEnd       time.Time `json:"trend_end"`

	SignalStrength float64   `json:"signal_strength"`
	CombinedScore  float64   `json:"combined_score"`
	Band           string    `json:"band"` // weak, moderate, strong, very_strong
	CreatedAt      time.Time `json:"created_at"`
}

// WarningResponse is one recoverable per-record problem.
type WarningResponse struct {
	Kind        string `json:"kind"`
	CandleIndex int    `json:"candle_index"`
	Message     string `json:"message"`
}

// RunResponse summarises one detection run.
type RunResponse struct {
	Symbol     string            `json:"symbol"`
	Timeframe  string            `json:"timeframe"`
	Matches    int               `json:"matches"`
	Written    int               `json:"written"`
	Published  int               `json:"published"`
	Warnings   []WarningResponse `json:"warnings"`
	DurationMS int64             `json:"duration_ms"`
}

// DiagnosticResponse explains the match count of a pair.
type DiagnosticResponse struct {
	Symbol            string `json:"symbol"`
	Timeframe         string `json:"timeframe"`
	KeyCandles        int    `json:"key_candles"`
	Zones             int    `json:"zones"`
	Trends            int    `json:"trends"`
	ExactMatches      []int  `json:"exact_matches"`
	ToleranceMatches  []int  `json:"tolerance_matches"`
	Tolerance         int    `json:"tolerance"`
	QualityZones      int    `json:"quality_zones"`
	QualityTrends     int    `json:"quality_trends"`
	QualityKeyCandles int    `json:"quality_key_candles"`
}

// FromSignal maps a stored signal.
func FromSignal(s entity.ScoredSignal) SignalResponse {
	return SignalResponse{
		Symbol:           s.Symbol,
		Timeframe:        s.Timeframe,
		CandleIndex:      s.CandleIndex,
		Timestamp:        s.Timestamp.UTC(),
		Open:             s.Open,
		High:             s.High,
		Low:              s.Low,
		Close:            s.Close,
		Volume:           s.Volume,
		BodyPercentage:   s.BodyPercentage,
		ZoneID:           s.ZoneID,
		ZoneQualityScore: s.ZoneQualityScore,
		ZoneStart:        s.ZoneStart.UTC(),
		ZoneEnd:          s.ZoneEnd.UTC(),
		TrendID:          s.TrendID,
		TrendDirection:   string(s.TrendDirection),
		TrendSlope:       s.TrendSlope,
		TrendRSquared:    s.TrendRSquared,
		TrendStart:       s.TrendStart.UTC(),
		TrendEnd:         s.TrendEnd.UTC(),
		SignalStrength:   s.SignalStrength,
		CombinedScore:    s.CombinedScore,
		Band:             string(entity.BandOf(s.CombinedScore)),
		CreatedAt:        s.CreatedAt.UTC(),
	}
}

// FromSignals maps a list; a nil input becomes an empty list.
func FromSignals(signals []entity.ScoredSignal) []SignalResponse {
	out := make([]SignalResponse, 0, len(signals))
	for _, s := range signals {
		out = append(out, FromSignal(s))
	}
	return out
}

func FromRunReport(r entity.RunReport) RunResponse {
	warnings := make([]WarningResponse, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		warnings = append(warnings, WarningResponse{Kind: string(w.Kind), CandleIndex: w.CandleIndex, Message: w.Message})
	}
	return RunResponse{
		Symbol:     r.Pair.Symbol,
		Timeframe:  r.Pair.Timeframe,
		Matches:    r.Matches,
		Written:    r.Written,
		Published:  r.Published,
		Warnings:   warnings,
		DurationMS: r.Duration.Milliseconds(),
	}
}

func FromDiagnosticReport(r entity.DiagnosticReport) DiagnosticResponse {
	return DiagnosticResponse{
		Symbol:            r.Pair.Symbol,
		Timeframe:         r.Pair.Timeframe,
		KeyCandles:        r.KeyCandles,
		Zones:             r.Zones,
		Trends:            r.Trends,
		ExactMatches:      nonNil(r.ExactMatches),
		ToleranceMatches:  nonNil(r.ToleranceMatches),
		Tolerance:         r.Tolerance,
		QualityZones:      r.QualityZones,
		QualityTrends:     r.QualityTrends,
		QualityKeyCandles: r.QualityKeyCandles,
	}
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
