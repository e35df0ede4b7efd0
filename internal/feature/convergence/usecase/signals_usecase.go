package usecase

import (
	"context"

	"signal_backend/internal/feature/convergence/domain/entity"
)

const (
	// DefaultListLimit はシグナル一覧のデフォルト返却件数です。
	DefaultListLimit = 500
	// MaxListLimit はシグナル一覧の最大返却件数です。
	MaxListLimit = 5000
)

// SignalReader はペアの保存済みシグナルを読み出すレイヤーです。
type SignalReader interface {
	// Find returns up to limit signals ordered by candle index.
	Find(ctx context.Context, pair entity.Pair, limit int) ([]entity.ScoredSignal, error)
}

// SignalsUsecase lists stored signals.
type SignalsUsecase struct {
	reader SignalReader
}

// NewSignalsUsecase は SignalsUsecase の新しいインスタンスを生成します。
func NewSignalsUsecase(reader SignalReader) *SignalsUsecase {
	return &SignalsUsecase{reader: reader}
}

// List returns the pair's signals ordered by candle index.
// A non-positive limit means DefaultListLimit; larger limits are capped at MaxListLimit.
func (su *SignalsUsecase) List(ctx context.Context, pair entity.Pair, limit int) ([]entity.ScoredSignal, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return su.reader.Find(ctx, pair, limit)
}
