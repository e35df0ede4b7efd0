package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_backend/internal/config"
	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/domain/entity"
)

type mockLister struct {
	ListPairsFunc func(ctx context.Context) ([]entity.Pair, error)
}

func (m *mockLister) ListPairs(ctx context.Context) ([]entity.Pair, error) {
	return m.ListPairsFunc(ctx)
}

type mockRunner struct {
	RunFunc func(ctx context.Context, pair entity.Pair) (entity.RunReport, error)
}

func (m *mockRunner) Run(ctx context.Context, pair entity.Pair) (entity.RunReport, error) {
	return m.RunFunc(ctx, pair)
}

var (
	btc1h = entity.Pair{Symbol: "BTCUSDT", Timeframe: "1h"}
	eth4h = entity.Pair{Symbol: "ETHUSDT", Timeframe: "4h"}
)

func TestSelectPairs(t *testing.T) {
	discovered := &mockLister{ListPairsFunc: func(context.Context) ([]entity.Pair, error) {
		return []entity.Pair{btc1h, eth4h}, nil
	}}

	tests := []struct {
		name        string
		symbol      string
		timeframe   string
		configured  []config.PairConfig
		lister      *mockLister
		expected    []entity.Pair
		expectedErr error
	}{
		{name: "flags win", symbol: "BTCUSDT", timeframe: "1h", configured: []config.PairConfig{{Symbol: "X", Timeframe: "1d"}}, expected: []entity.Pair{btc1h}},
		{name: "symbol without timeframe", symbol: "BTCUSDT", expectedErr: domain.ErrInvalidPair},
		{name: "configured pairs", configured: []config.PairConfig{{Symbol: "ETHUSDT", Timeframe: "4h"}}, expected: []entity.Pair{eth4h}},
		{name: "discovered pairs", lister: discovered, expected: []entity.Pair{btc1h, eth4h}},
		{
			name: "nothing to run",
			lister: &mockLister{ListPairsFunc: func(context.Context) ([]entity.Pair, error) {
				return nil, nil
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectPairs(context.Background(), tt.symbol, tt.timeframe, tt.configured, tt.lister)
			if tt.expected == nil {
				require.Error(t, err)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRunAll_ContinuesPastFailures(t *testing.T) {
	var seen []entity.Pair
	r := &mockRunner{RunFunc: func(ctx context.Context, pair entity.Pair) (entity.RunReport, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		seen = append(seen, pair)
		if pair == btc1h {
			return entity.RunReport{Pair: pair}, domain.ErrRunInProgress
		}
		return entity.RunReport{Pair: pair, Written: 1}, nil
	}}

	failed := runAll(context.Background(), r, []entity.Pair{btc1h, eth4h}, config.DetectConfig{RunTimeout: time.Minute}, zerolog.Nop())

	assert.Equal(t, 1, failed)
	assert.Equal(t, []entity.Pair{btc1h, eth4h}, seen)
}

func TestRunAll_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &mockRunner{RunFunc: func(context.Context, entity.Pair) (entity.RunReport, error) {
		cancel()
		return entity.RunReport{}, errors.New("interrupted")
	}}

	failed := runAll(ctx, r, []entity.Pair{btc1h, eth4h, btc1h}, config.DetectConfig{RunTimeout: time.Minute}, zerolog.Nop())

	assert.Equal(t, 3, failed)
}

func TestRunAll_ZeroTimeoutHasNoDeadline(t *testing.T) {
	r := &mockRunner{RunFunc: func(ctx context.Context, pair entity.Pair) (entity.RunReport, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		require.NoError(t, ctx.Err())
		return entity.RunReport{Pair: pair}, nil
	}}

	failed := runAll(context.Background(), r, []entity.Pair{btc1h}, config.DetectConfig{}, zerolog.Nop())

	assert.Zero(t, failed)
}
