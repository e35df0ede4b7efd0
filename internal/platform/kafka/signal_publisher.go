package kafka

import (
	"context"
	"strconv"
	"time"

	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/usecase"
)

// SignalEvent is the JSON value of a published signal.
type SignalEvent struct {
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	CandleIndex    int       `json:"candle_index"`
	Timestamp      time.Time `json:"timestamp"`
	Close          float64   `json:"close"`
	ZoneID         int64     `json:"zone_id"`
	TrendID        int64     `json:"trend_id"`
	TrendDirection string    `json:"trend_direction"`
	SignalStrength float64   `json:"signal_strength"`
	CombinedScore  float64   `json:"combined_score"`
	Band           string    `json:"band"`
	CreatedAt      time.Time `json:"created_at"`
}

// SignalPublisher adapts Producer to usecase.SignalPublisher.
type SignalPublisher struct {
	producer *Producer
}

var _ usecase.SignalPublisher = (*SignalPublisher)(nil)

func NewSignalPublisher(p *Producer) *SignalPublisher {
	return &SignalPublisher{producer: p}
}

// Publish sends one event per signal, keyed by symbol:timeframe:candle_index.
func (s *SignalPublisher) Publish(ctx context.Context, signals []entity.ScoredSignal) error {
	return s.producer.PublishBatch(ctx, signalMessages(signals))
}

func signalMessages(signals []entity.ScoredSignal) []Message {
	msgs := make([]Message, 0, len(signals))
	for _, sig := range signals {
		msgs = append(msgs, Message{Key: []byte(signalKey(sig)), Value: toEvent(sig)})
	}
	return msgs
}

func signalKey(s entity.ScoredSignal) string {
	return s.Symbol + ":" + s.Timeframe + ":" + strconv.Itoa(s.CandleIndex)
}

func toEvent(s entity.ScoredSignal) SignalEvent {
	return SignalEvent{
		Symbol:         s.Symbol,
		Timeframe:      s.Timeframe,
		CandleIndex:    s.CandleIndex,
		Timestamp:      s.Timestamp,
		Close:          s.Close,
		ZoneID:         s.ZoneID,
		TrendID:        s.TrendID,
		TrendDirection: string(s.TrendDirection),
		SignalStrength: s.SignalStrength,
		CombinedScore:  s.CombinedScore,
		Band:           string(entity.BandOf(s.CombinedScore)),
		CreatedAt:      s.CreatedAt,
	}
}
