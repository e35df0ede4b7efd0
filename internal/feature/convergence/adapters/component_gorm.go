package adapters

import (
	"context"

	"gorm.io/gorm"

	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/usecase"
)

type componentGorm struct {
	db *gorm.DB
}

var _ usecase.ComponentSource = (*componentGorm)(nil)

// NewComponentSource は検出器テーブルを読む ComponentSource を返します。
func NewComponentSource(db *gorm.DB) *componentGorm {
	return &componentGorm{db: db}
}

func (r *componentGorm) scoped(ctx context.Context, pair entity.Pair) *gorm.DB {
	return r.db.WithContext(ctx).Where("symbol = ? AND timeframe = ?", pair.Symbol, pair.Timeframe)
}

// KeyCandles returns every candle of the pair, key or not, in candle index order.
func (r *componentGorm) KeyCandles(ctx context.Context, pair entity.Pair) ([]entity.KeyCandle, error) {
	var rows []KeyCandleModel
	if err := r.scoped(ctx, pair).Order("candle_index ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.KeyCandle, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toEntity())
	}
	return out, nil
}

// Zones returns the pair's zones in id order, which is the tie-break order for matching.
func (r *componentGorm) Zones(ctx context.Context, pair entity.Pair) ([]entity.AccumulationZone, error) {
	var rows []ZoneModel
	if err := r.scoped(ctx, pair).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.AccumulationZone, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toEntity())
	}
	return out, nil
}

// Trends returns the pair's mini-trends in id order.
func (r *componentGorm) Trends(ctx context.Context, pair entity.Pair) ([]entity.MiniTrend, error) {
	var rows []TrendModel
	if err := r.scoped(ctx, pair).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.MiniTrend, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toEntity())
	}
	return out, nil
}

// ListPairs returns every distinct (symbol, timeframe) present in key_candles.
func (r *componentGorm) ListPairs(ctx context.Context) ([]entity.Pair, error) {
	var rows []struct {
		Symbol    string
		Timeframe string
	}
	err := r.db.WithContext(ctx).
		Model(&KeyCandleModel{}).
		Distinct("symbol", "timeframe").
		Order("symbol ASC, timeframe ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]entity.Pair, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.Pair{Symbol: row.Symbol, Timeframe: row.Timeframe})
	}
	return out, nil
}
