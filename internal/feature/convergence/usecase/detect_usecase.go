package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/domain/entity"
)

// ComponentSource は検出器が出力した3種類のコンポーネントを読み出すインターフェースです。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type ComponentSource interface {
	KeyCandles(ctx context.Context, pair entity.Pair) ([]entity.KeyCandle, error)
	Zones(ctx context.Context, pair entity.Pair) ([]entity.AccumulationZone, error)
	Trends(ctx context.Context, pair entity.Pair) ([]entity.MiniTrend, error)
}

// WriteResult reports what a replace actually stored.
type WriteResult struct {
	Written    int
	Duplicates []int // candle indexes the store refused as already present
}

// SignalWriter はペア単位でシグナルを置き換える永続化レイヤーです。
// ReplaceAll は既存行の削除と新規行の挿入を1つのトランザクションで行い、失敗時はロールバックします。
type SignalWriter interface {
	ReplaceAll(ctx context.Context, pair entity.Pair, signals []entity.ScoredSignal) (WriteResult, error)
}

// SignalPublisher emits committed signals to downstream consumers.
type SignalPublisher interface {
	Publish(ctx context.Context, signals []entity.ScoredSignal) error
}

// RunLocker serialises runs for the same key. Lock returns domain.ErrRunInProgress when the key is held elsewhere.
type RunLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Metrics records run outcomes.
type Metrics interface {
	ObserveRun(pair entity.Pair, result string, d time.Duration)
	AddSignals(pair entity.Pair, n int)
	AddWarnings(kind entity.WarningKind, n int)
	IncSinkError(code string)
	IncPublishError()
}

// Run results used as metric labels.
const (
	ResultOK        = "ok"
	ResultIntegrity = "integrity_error"
	ResultSink      = "sink_error"
	ResultLocked    = "locked"
	ResultSource    = "source_error"
	ResultInvalid   = "invalid"
)

// DetectUsecase は1つの銘柄・時間足についてマッチング、スコアリング、永続化を実行します。
type DetectUsecase struct {
	source    ComponentSource
	writer    SignalWriter
	locker    RunLocker
	publisher SignalPublisher
	metrics   Metrics
	log       zerolog.Logger
	now       func() time.Time

	minPublishScore float64
}

// DetectOption configures a DetectUsecase.
type DetectOption func(*DetectUsecase)

// WithLocker sets the locker used to serialise runs per pair.
func WithLocker(l RunLocker) DetectOption { return func(u *DetectUsecase) { u.locker = l } }

// WithPublisher enables publishing of signals whose combined score is at least minScore.
func WithPublisher(p SignalPublisher, minScore float64) DetectOption {
	return func(u *DetectUsecase) {
		u.publisher = p
		u.minPublishScore = minScore
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) DetectOption { return func(u *DetectUsecase) { u.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) DetectOption { return func(u *DetectUsecase) { u.log = l } }

// WithClock overrides the clock used for created_at and durations.
func WithClock(now func() time.Time) DetectOption { return func(u *DetectUsecase) { u.now = now } }

// NewDetectUsecase は新しい DetectUsecase を作成します。
func NewDetectUsecase(source ComponentSource, writer SignalWriter, opts ...DetectOption) *DetectUsecase {
	u := &DetectUsecase{
		source:  source,
		writer:  writer,
		locker:  noopLocker{},
		metrics: noopMetrics{},
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run はペアの既存シグナルを今回の検出結果で置き換えます。
// エラー時も RunReport を返し、その Written は 0 です。
func (u *DetectUsecase) Run(ctx context.Context, pair entity.Pair) (entity.RunReport, error) {
	start := u.now()
	report := entity.RunReport{Pair: pair}
	log := u.log.With().Str("symbol", pair.Symbol).Str("timeframe", pair.Timeframe).Logger()

	if err := pair.Validate(); err != nil {
		return u.finish(log, report, start, ResultInvalid, err)
	}

	unlock, err := u.locker.Lock(ctx, pair.Key())
	if err != nil {
		return u.finish(log, report, start, ResultLocked, err)
	}
	defer unlock()

	matcher, err := u.load(ctx, pair)
	if err != nil {
		if errors.Is(err, domain.ErrDataIntegrity) {
			return u.finish(log, report, start, ResultIntegrity, err)
		}
		return u.finish(log, report, start, ResultSource, err)
	}

	createdAt := u.now().UTC()
	signals := make([]entity.ScoredSignal, 0, matcher.KeyCandles())
	for m := range matcher.Matches() {
		s, ws := Score(pair, m, createdAt)
		signals = append(signals, s)
		report.Warnings = append(report.Warnings, ws...)
	}
	report.Matches = len(signals)

	signals, dups := DedupeSignals(signals)
	report.Warnings = append(report.Warnings, dups...)

	res, err := u.writer.ReplaceAll(ctx, pair, signals)
	if err != nil {
		var se *domain.SinkError
		if errors.As(err, &se) {
			u.metrics.IncSinkError(se.Code)
		}
		return u.finish(log, report, start, ResultSink, err)
	}
	report.Written = res.Written
	for _, idx := range res.Duplicates {
		report.Warnings = append(report.Warnings, duplicateWarning(idx))
	}
	if len(signals) == 0 {
		log.Info().Msg("no matches; prior signals cleared")
	}

	report.Published = u.publish(ctx, log, signals, res.Duplicates)
	u.metrics.AddSignals(pair, report.Written)
	return u.finish(log, report, start, ResultOK, nil)
}

func (u *DetectUsecase) load(ctx context.Context, pair entity.Pair) (*Matcher, error) {
	candles, err := u.source.KeyCandles(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("load key candles: %w", err)
	}
	zones, err := u.source.Zones(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("load accumulation zones: %w", err)
	}
	trends, err := u.source.Trends(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("load mini trends: %w", err)
	}
	return NewMatcher(candles, zones, trends)
}

// publish はコミット済みのシグナルのうち閾値以上のものを送信します。送信失敗はランを失敗させません。
func (u *DetectUsecase) publish(ctx context.Context, log zerolog.Logger, signals []entity.ScoredSignal, skipped []int) int {
	if u.publisher == nil {
		return 0
	}
	refused := make(map[int]struct{}, len(skipped))
	for _, idx := range skipped {
		refused[idx] = struct{}{}
	}
	out := make([]entity.ScoredSignal, 0, len(signals))
	for _, s := range signals {
		if _, ok := refused[s.CandleIndex]; ok {
			continue
		}
		if s.CombinedScore >= u.minPublishScore {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return 0
	}
	if err := u.publisher.Publish(ctx, out); err != nil {
		u.metrics.IncPublishError()
		log.Error().Err(err).Int("signals", len(out)).Msg("failed to publish signals")
		return 0
	}
	return len(out)
}

func (u *DetectUsecase) finish(log zerolog.Logger, report entity.RunReport, start time.Time, result string, err error) (entity.RunReport, error) {
	report.Duration = u.now().Sub(start)
	if err != nil {
		report.Written = 0
	}
	counts := make(map[entity.WarningKind]int)
	for _, w := range report.Warnings {
		counts[w.Kind]++
		log.Warn().Str("kind", string(w.Kind)).Int("candle_index", w.CandleIndex).Msg(w.Message)
	}
	for kind, n := range counts {
		u.metrics.AddWarnings(kind, n)
	}
	u.metrics.ObserveRun(report.Pair, result, report.Duration)

	if err != nil {
		log.Error().Err(err).Str("result", result).Int64("duration_ms", report.Duration.Milliseconds()).Msg("convergence run failed")
		return report, err
	}
	log.Info().
		Int("matches", report.Matches).
		Int("written", report.Written).
		Int("published", report.Published).
		Int("warnings", len(report.Warnings)).
		Int64("duration_ms", report.Duration.Milliseconds()).
		Msg("convergence run completed")
	return report, nil
}

// DedupeSignals keeps the first signal for each (symbol, timeframe, candle index) and
// returns a duplicate-key warning for every later one.
func DedupeSignals(signals []entity.ScoredSignal) ([]entity.ScoredSignal, []entity.Warning) {
	type key struct {
		symbol, timeframe string
		index             int
	}
	seen := make(map[key]struct{}, len(signals))
	out := make([]entity.ScoredSignal, 0, len(signals))
	var warnings []entity.Warning
	for _, s := range signals {
		k := key{s.Symbol, s.Timeframe, s.CandleIndex}
		if _, dup := seen[k]; dup {
			warnings = append(warnings, duplicateWarning(s.CandleIndex))
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out, warnings
}

func duplicateWarning(index int) entity.Warning {
	return entity.Warning{
		Kind:        entity.WarningDuplicateKey,
		CandleIndex: index,
		Message:     fmt.Sprintf("duplicate signal for candle %d dropped", index),
	}
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type noopMetrics struct{}

func (noopMetrics) ObserveRun(entity.Pair, string, time.Duration) {}
func (noopMetrics) AddSignals(entity.Pair, int)                   {}
func (noopMetrics) AddWarnings(entity.WarningKind, int)           {}
func (noopMetrics) IncSinkError(string)                           {}
func (noopMetrics) IncPublishError()                              {}
