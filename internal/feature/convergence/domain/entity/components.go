// Package entity defines the domain models for the convergence feature.
package entity

import (
	"strings"
	"time"
)

// Collection names used in integrity errors.
const (
	CollectionKeyCandles = "key_candles"
	CollectionZones      = "accumulation_zones"
	CollectionTrends     = "mini_trends"
)

// Direction is the fitted direction of a mini-trend.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// ParseDirection accepts bullish/bearish and the legacy alcista/bajista labels.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish", "alcista":
		return Bullish, true
	case "bearish", "bajista":
		return Bearish, true
	default:
		return Direction(s), false
	}
}

// KeyCandle is a price bar produced by the key-candle detector.
// Only candles with IsKeyCandle set take part in matching.
type KeyCandle struct {
	Index          int `validate:"gte=0"`
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	BodyPercentage float64 // 0-100
	IsKeyCandle    bool
}

// Validate rejects candles with a negative index.
func (c KeyCandle) Validate() error {
	if err := validate.Struct(c); err != nil {
		return integrityError(CollectionKeyCandles, 0, c.Index, err)
	}
	return nil
}

// AccumulationZone is a consolidation interval produced by the zone detector.
type AccumulationZone struct {
	ID           int64
	StartIdx     int `validate:"gte=0"`
	EndIdx       int `validate:"gtefield=StartIdx"`
	QualityScore float64
	StartTime    time.Time
	EndTime      time.Time
}

// Bounds returns the inclusive index range of the zone.
func (z AccumulationZone) Bounds() (int, int) { return z.StartIdx, z.EndIdx }

// Validate rejects zones whose start is after their end.
func (z AccumulationZone) Validate() error {
	if err := validate.Struct(z); err != nil {
		return integrityError(CollectionZones, z.ID, z.StartIdx, err)
	}
	return nil
}

// MiniTrend is a fitted linear segment produced by the mini-trend detector.
type MiniTrend struct {
	ID        int64
	StartIdx  int       `validate:"gte=0"`
	EndIdx    int       `validate:"gtefield=StartIdx"`
	Direction Direction `validate:"oneof=bullish bearish"`
	Slope     float64
	RSquared  float64
	StartTime time.Time
	EndTime   time.Time
}

// Bounds returns the inclusive index range of the trend.
func (t MiniTrend) Bounds() (int, int) { return t.StartIdx, t.EndIdx }

// Validate rejects trends with inverted bounds or an unknown direction.
func (t MiniTrend) Validate() error {
	if err := validate.Struct(t); err != nil {
		return integrityError(CollectionTrends, t.ID, t.StartIdx, err)
	}
	return nil
}

// Match is one key candle together with the zone and trend that contain it.
type Match struct {
	Candle KeyCandle
	Zone   AccumulationZone
	Trend  MiniTrend
}
