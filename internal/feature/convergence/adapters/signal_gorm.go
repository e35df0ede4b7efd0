package adapters

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/usecase"
)

type signalGorm struct {
	db *gorm.DB
}

var (
	_ usecase.SignalWriter = (*signalGorm)(nil)
	_ usecase.SignalReader = (*signalGorm)(nil)
)

// NewSignalRepository は triple_signals テーブルのリポジトリを返します。
func NewSignalRepository(db *gorm.DB) *signalGorm {
	return &signalGorm{db: db}
}

// ReplaceAll deletes every stored signal of the pair and inserts signals, in one transaction.
// A row whose natural key already exists is skipped and reported in WriteResult.Duplicates.
// Any failure rolls the whole replace back and is returned as *domain.SinkError.
func (r *signalGorm) ReplaceAll(ctx context.Context, pair entity.Pair, signals []entity.ScoredSignal) (usecase.WriteResult, error) {
	var res usecase.WriteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Postgres では同一ペアの書き込みをトランザクション単位で直列化する
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", pair.Key()).Error; err != nil {
				return sinkError("lock", err)
			}
		}

		err := tx.Where("symbol = ? AND timeframe = ?", pair.Symbol, pair.Timeframe).
			Delete(&SignalModel{}).Error
		if err != nil {
			return sinkError("delete", err)
		}

		for _, s := range signals {
			m := toSignalModel(s)
			m.Symbol, m.Timeframe = pair.Symbol, pair.Timeframe
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "candle_index"}},
				DoNothing: true,
			}).Create(&m)
			if result.Error != nil {
				return sinkError("insert", result.Error)
			}
			if result.RowsAffected == 0 {
				res.Duplicates = append(res.Duplicates, s.CandleIndex)
				continue
			}
			res.Written++
		}
		return nil
	})
	if err != nil {
		var se *domain.SinkError
		if !errors.As(err, &se) {
			err = sinkError("commit", err)
		}
		return usecase.WriteResult{}, err
	}
	return res, nil
}

// Find returns up to limit signals of the pair in candle index order.
func (r *signalGorm) Find(ctx context.Context, pair entity.Pair, limit int) ([]entity.ScoredSignal, error) {
	var rows []SignalModel
	q := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", pair.Symbol, pair.Timeframe).
		Order("candle_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.ScoredSignal, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toEntity())
	}
	return out, nil
}

func sinkError(op string, err error) *domain.SinkError {
	se := &domain.SinkError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se.Code = pgErr.Code
	}
	return se
}
