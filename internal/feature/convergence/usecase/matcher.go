package usecase

import (
	"iter"
	"sort"

	"signal_backend/internal/feature/convergence/domain/entity"
)

// Matcher finds key candles that sit inside both an accumulation zone and a mini-trend.
type Matcher struct {
	candles []entity.KeyCandle // key candles only, ascending by index
	zones   *IntervalIndex[entity.AccumulationZone]
	trends  *IntervalIndex[entity.MiniTrend]
}

// NewMatcher validates the three collections and prepares them for matching.
// Zones and trends keep their given order, which decides ties.
func NewMatcher(candles []entity.KeyCandle, zones []entity.AccumulationZone, trends []entity.MiniTrend) (*Matcher, error) {
	keys := make([]entity.KeyCandle, 0, len(candles))
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if c.IsKeyCandle {
			keys = append(keys, c)
		}
	}
	// Equal indexes keep their input order; the later ones are dropped when the signals are deduplicated.
	sort.SliceStable(keys, func(a, b int) bool { return keys[a].Index < keys[b].Index })

	zi, err := NewIntervalIndex(entity.CollectionZones, zones)
	if err != nil {
		return nil, err
	}
	ti, err := NewIntervalIndex(entity.CollectionTrends, trends)
	if err != nil {
		return nil, err
	}
	return &Matcher{candles: keys, zones: zi, trends: ti}, nil
}

// KeyCandles returns the number of candles taking part in matching.
func (m *Matcher) KeyCandles() int { return len(m.candles) }

// Matches yields one Match per key candle contained in at least one zone and one trend,
// in ascending candle index order. The sequence can be ranged over more than once.
func (m *Matcher) Matches() iter.Seq[entity.Match] {
	return func(yield func(entity.Match) bool) {
		zones, trends := m.zones.Sweep(), m.trends.Sweep()
		for _, c := range m.candles {
			z, ok := zones.Find(c.Index)
			if !ok {
				continue
			}
			t, ok := trends.Find(c.Index)
			if !ok {
				continue
			}
			if !yield(entity.Match{Candle: c, Zone: z, Trend: t}) {
				return
			}
		}
	}
}
