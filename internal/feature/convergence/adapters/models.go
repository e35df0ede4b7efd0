package adapters

import (
	"time"

	"signal_backend/internal/feature/convergence/domain/entity"
)

// KeyCandleModel は key_candles テーブルの行です。上流の検出器が書き込みます。
type KeyCandleModel struct {
	ID             uint   `gorm:"primaryKey"`
	Symbol         string `gorm:"size:32;not null;index:key_candle_sym_tf,priority:1"`
	Timeframe      string `gorm:"size:16;not null;index:key_candle_sym_tf,priority:2"`
	CandleIndex    int    `gorm:"not null"`
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	BodyPercentage float64
	IsKeyCandle    bool `gorm:"not null;default:false"`
}

func (KeyCandleModel) TableName() string {
	return "key_candles"
}

func (m KeyCandleModel) toEntity() entity.KeyCandle {
	return entity.KeyCandle{
		Index:          m.CandleIndex,
		Open:           m.Open,
		High:           m.High,
		Low:            m.Low,
		Close:          m.Close,
		Volume:         m.Volume,
		BodyPercentage: m.BodyPercentage,
		IsKeyCandle:    m.IsKeyCandle,
	}
}

// ZoneModel is a row of detect_accumulation_zone_results.
type ZoneModel struct {
	ID            int64  `gorm:"primaryKey"`
	Symbol        string `gorm:"size:32;not null;index:zone_sym_tf,priority:1"`
	Timeframe     string `gorm:"size:16;not null;index:zone_sym_tf,priority:2"`
	StartIdx      int    `gorm:"not null"`
	EndIdx        int    `gorm:"not null"`
	QualityScore  float64
	DatetimeStart *time.Time
	DatetimeEnd   *time.Time
}

func (ZoneModel) TableName() string {
	return "detect_accumulation_zone_results"
}

func (m ZoneModel) toEntity() entity.AccumulationZone {
	return entity.AccumulationZone{
		ID:           m.ID,
		StartIdx:     m.StartIdx,
		EndIdx:       m.EndIdx,
		QualityScore: m.QualityScore,
		StartTime:    deref(m.DatetimeStart),
		EndTime:      deref(m.DatetimeEnd),
	}
}

// TrendModel is a row of mini_trend_results.
type TrendModel struct {
	ID        int64  `gorm:"primaryKey"`
	Symbol    string `gorm:"size:32;not null;index:trend_sym_tf,priority:1"`
	Timeframe string `gorm:"size:16;not null;index:trend_sym_tf,priority:2"`
	StartIdx  int    `gorm:"not null"`
	EndIdx    int    `gorm:"not null"`
	Direction string `gorm:"size:16;not null"`
	Slope     float64
	RSquared  float64 `gorm:"column:r_squared"`
	StartTime *time.Time
	EndTime   *time.Time
}

func (TrendModel) TableName() string {
	return "mini_trend_results"
}

func (m TrendModel) toEntity() entity.MiniTrend {
	// 未知の値はそのまま渡し、エンティティ側の検証で弾く
	dir, _ := entity.ParseDirection(m.Direction)
	return entity.MiniTrend{
		ID:        m.ID,
		StartIdx:  m.StartIdx,
		EndIdx:    m.EndIdx,
		Direction: dir,
		Slope:     m.Slope,
		RSquared:  m.RSquared,
		StartTime: deref(m.StartTime),
		EndTime:   deref(m.EndTime),
	}
}

// SignalModel is a row of triple_signals.
type SignalModel struct {
	ID             uint      `gorm:"primaryKey"`
	Symbol         string    `gorm:"size:32;not null;uniqueIndex:triple_signal_key,priority:1"`
	Timeframe      string    `gorm:"size:16;not null;uniqueIndex:triple_signal_key,priority:2"`
	CandleIndex    int       `gorm:"not null;uniqueIndex:triple_signal_key,priority:3"`
	Datetime       time.Time `gorm:"not null"`
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	BodyPercentage float64

	ZoneID           int64
	ZoneQualityScore float64
	ZoneStart        *time.Time
	ZoneEnd          *time.Time
	TrendID          int64
	TrendDirection   string `gorm:"size:16"`
	TrendSlope       float64
	TrendRSquared    float64 `gorm:"column:trend_r_squared"`
	TrendStart       *time.Time
	TrendEnd         *time.Time
	SignalStrength   float64   `gorm:"not null"`
	CombinedScore    float64   `gorm:"not null;index"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (SignalModel) TableName() string {
	return "triple_signals"
}

func toSignalModel(s entity.ScoredSignal) SignalModel {
	return SignalModel{
		Symbol:           s.Symbol,
		Timeframe:        s.Timeframe,
		CandleIndex:      s.CandleIndex,
		Datetime:         s.Timestamp,
		Open:             s.Open,
		High:             s.High,
		Low:              s.Low,
		Close:            s.Close,
		Volume:           s.Volume,
		BodyPercentage:   s.BodyPercentage,
		ZoneID:           s.ZoneID,
		ZoneQualityScore: s.ZoneQualityScore,
		ZoneStart:        ref(s.ZoneStart),
		ZoneEnd:          ref(s.ZoneEnd),
		TrendID:          s.TrendID,
		TrendDirection:   string(s.TrendDirection),
		TrendSlope:       s.TrendSlope,
		TrendRSquared:    s.TrendRSquared,
		TrendStart:       ref(s.TrendStart),
		TrendEnd:         ref(s.TrendEnd),
		SignalStrength:   s.SignalStrength,
		CombinedScore:    s.CombinedScore,
		CreatedAt:        s.CreatedAt,
	}
}

func (m SignalModel) toEntity() entity.ScoredSignal {
	return entity.ScoredSignal{
		Symbol:           m.Symbol,
		Timeframe:        m.Timeframe,
		CandleIndex:      m.CandleIndex,
		Timestamp:        m.Datetime,
		Open:             m.Open,
		High:             m.High,
		Low:              m.Low,
		Close:            m.Close,
		Volume:           m.Volume,
		BodyPercentage:   m.BodyPercentage,
		ZoneID:           m.ZoneID,
		ZoneQualityScore: m.ZoneQualityScore,
		ZoneStart:        deref(m.ZoneStart),
		ZoneEnd:          deref(m.ZoneEnd),
		TrendID:          m.TrendID,
		TrendDirection:   entity.Direction(m.TrendDirection),
		TrendSlope:       m.TrendSlope,
		TrendRSquared:    m.TrendRSquared,
		TrendStart:       deref(m.TrendStart),
		TrendEnd:         deref(m.TrendEnd),
		SignalStrength:   m.SignalStrength,
		CombinedScore:    m.CombinedScore,
		CreatedAt:        m.CreatedAt,
	}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func ref(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
