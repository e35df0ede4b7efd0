package usecase

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/domain/entity"
)

func TestIntervalIndex_Find(t *testing.T) {
	zones := []entity.AccumulationZone{
		{ID: 1, StartIdx: 10, EndIdx: 20, QualityScore: 0.1},
		{ID: 2, StartIdx: 5, EndIdx: 30, QualityScore: 0.9},
		{ID: 3, StartIdx: 40, EndIdx: 40},
	}
	idx, err := NewIntervalIndex(entity.CollectionZones, zones)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		query  int
		wantID int64
		wantOK bool
	}{
		{name: "before every interval", query: 4, wantOK: false},
		{name: "only the wider zone contains it", query: 7, wantID: 2, wantOK: true},
		{name: "overlap resolved by input order", query: 15, wantID: 1, wantOK: true},
		{name: "inclusive start", query: 10, wantID: 1, wantOK: true},
		{name: "inclusive end", query: 20, wantID: 1, wantOK: true},
		{name: "after the first zone ends", query: 21, wantID: 2, wantOK: true},
		{name: "gap between intervals", query: 35, wantOK: false},
		{name: "single bar interval", query: 40, wantID: 3, wantOK: true},
		{name: "after every interval", query: 41, wantOK: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := idx.Find(tc.query)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantID, got.ID)
			}
		})
	}
}

func TestIntervalIndex_Empty(t *testing.T) {
	idx, err := NewIntervalIndex[entity.MiniTrend](entity.CollectionTrends, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())

	_, ok := idx.Find(0)
	assert.False(t, ok)
	_, ok = idx.Sweep().Find(0)
	assert.False(t, ok)
}

func TestIntervalIndex_RejectsMalformedBounds(t *testing.T) {
	testCases := []struct {
		name  string
		zones []entity.AccumulationZone
	}{
		{name: "start after end", zones: []entity.AccumulationZone{{ID: 7, StartIdx: 12, EndIdx: 3}}},
		{name: "negative start", zones: []entity.AccumulationZone{{ID: 8, StartIdx: -1, EndIdx: 3}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIntervalIndex(entity.CollectionZones, tc.zones)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrDataIntegrity)

			var die *domain.DataIntegrityError
			require.ErrorAs(t, err, &die)
			assert.Equal(t, entity.CollectionZones, die.Collection)
			assert.Equal(t, tc.zones[0].ID, die.ID)
		})
	}
}

func TestIntervalIndex_RejectsBoundsWithoutValidator(t *testing.T) {
	_, err := NewIntervalIndex("spans", []span{{start: 4, end: 2}})
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
}

// firstContaining is the linear reference the index must agree with.
func firstContaining(spans []span, i int) (int, bool) {
	for pos, s := range spans {
		if s.start <= i && i <= s.end {
			return pos, true
		}
	}
	return -1, false
}

func TestIntervalIndex_AgreesWithLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		spans := make([]span, rng.Intn(40))
		for i := range spans {
			s := rng.Intn(200)
			spans[i] = span{start: s, end: s + rng.Intn(30)}
		}
		idx, err := NewIntervalIndex("spans", spans)
		require.NoError(t, err)
		sweep := idx.Sweep()

		for q := 0; q < 240; q++ {
			wantPos, wantOK := firstContaining(spans, q)

			got, ok := idx.Find(q)
			require.Equal(t, wantOK, ok, "round %d query %d", round, q)
			swept, sok := sweep.Find(q)
			require.Equal(t, wantOK, sok, "round %d sweep query %d", round, q)
			if wantOK {
				assert.Equal(t, spans[wantPos], got)
				assert.Equal(t, spans[wantPos], swept)
			}
		}
	}
}

func TestSweeper_QueryBelowCursorFallsBack(t *testing.T) {
	spans := []span{{start: 0, end: 5}, {start: 10, end: 20}}
	idx, err := NewIntervalIndex("spans", spans)
	require.NoError(t, err)
	sweep := idx.Sweep()

	got, ok := sweep.Find(12)
	require.True(t, ok)
	assert.Equal(t, spans[1], got)

	got, ok = sweep.Find(3)
	require.True(t, ok)
	assert.Equal(t, spans[0], got)

	got, ok = sweep.Find(15)
	require.True(t, ok)
	assert.Equal(t, spans[1], got)
}
