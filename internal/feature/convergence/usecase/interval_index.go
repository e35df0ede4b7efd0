// Package usecase implements matching, scoring and persistence orchestration for triple-coincidence signals.
package usecase

import (
	"container/heap"
	"fmt"
	"sort"

	"signal_backend/internal/feature/convergence/domain"
)

// Interval is a record covering an inclusive range of candle indexes.
type Interval interface {
	Bounds() (start, end int)
}

// IntervalIndex answers "which interval contains index i" over a fixed set of intervals.
//
// Tie-break: when several intervals contain i, the one that appears first in the
// slice given to NewIntervalIndex wins. Quality attributes are never consulted.
// The index is immutable after construction.
type IntervalIndex[T Interval] struct {
	items   []T
	starts  []int
	ends    []int
	byStart []int // positions into items, ordered by (start, position)
	maxEnd  []int // maxEnd[k] is the largest end among byStart[:k+1]
}

// NewIntervalIndex builds an index over items, keeping their order as the tie-break order.
// A record with start > end or a negative start is rejected with a DataIntegrityError.
func NewIntervalIndex[T Interval](collection string, items []T) (*IntervalIndex[T], error) {
	x := &IntervalIndex[T]{
		items:   append([]T(nil), items...),
		starts:  make([]int, len(items)),
		ends:    make([]int, len(items)),
		byStart: make([]int, len(items)),
		maxEnd:  make([]int, len(items)),
	}
	for pos, it := range x.items {
		if v, ok := any(it).(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		start, end := it.Bounds()
		if start < 0 || start > end {
			return nil, &domain.DataIntegrityError{
				Collection: collection,
				Index:      start,
				Reason:     fmt.Sprintf("invalid bounds [%d, %d] at position %d", start, end, pos),
			}
		}
		x.starts[pos], x.ends[pos] = start, end
		x.byStart[pos] = pos
	}
	sort.SliceStable(x.byStart, func(a, b int) bool {
		return x.starts[x.byStart[a]] < x.starts[x.byStart[b]]
	})
	for k, pos := range x.byStart {
		x.maxEnd[k] = x.ends[pos]
		if k > 0 && x.maxEnd[k-1] > x.maxEnd[k] {
			x.maxEnd[k] = x.maxEnd[k-1]
		}
	}
	return x, nil
}

// Len returns the number of indexed intervals.
func (x *IntervalIndex[T]) Len() int { return len(x.items) }

// Find returns the first interval, in input order, with start <= i <= end.
func (x *IntervalIndex[T]) Find(i int) (T, bool) {
	var zero T
	k := sort.Search(len(x.byStart), func(j int) bool { return x.starts[x.byStart[j]] > i })
	if k == 0 || x.maxEnd[k-1] < i {
		return zero, false
	}
	best := -1
	for _, pos := range x.byStart[:k] {
		if x.ends[pos] >= i && (best < 0 || pos < best) {
			best = pos
		}
	}
	if best < 0 {
		return zero, false
	}
	return x.items[best], true
}

// Sweep returns a cursor for queries issued in non-decreasing index order.
// It gives the same answers as Find in O(log n) amortized per query.
func (x *IntervalIndex[T]) Sweep() *Sweeper[T] {
	return &Sweeper[T]{idx: x}
}

// Sweeper walks an IntervalIndex with ascending queries.
// A query below the previous one is answered by Find and leaves the cursor untouched.
type Sweeper[T Interval] struct {
	idx     *IntervalIndex[T]
	next    int
	active  positionHeap
	last    int
	started bool
}

// Find returns the first interval, in input order, that contains i.
func (s *Sweeper[T]) Find(i int) (T, bool) {
	if s.started && i < s.last {
		return s.idx.Find(i)
	}
	s.started, s.last = true, i

	x := s.idx
	for s.next < len(x.byStart) && x.starts[x.byStart[s.next]] <= i {
		heap.Push(&s.active, x.byStart[s.next])
		s.next++
	}
	// Intervals that ended before i can never contain a later query.
	for s.active.Len() > 0 && x.ends[s.active[0]] < i {
		heap.Pop(&s.active)
	}
	if s.active.Len() == 0 {
		var zero T
		return zero, false
	}
	return x.items[s.active[0]], true
}

// positionHeap is a min-heap of input positions.
type positionHeap []int

func (h positionHeap) Len() int           { return len(h) }
func (h positionHeap) Less(a, b int) bool { return h[a] < h[b] }
func (h positionHeap) Swap(a, b int)      { h[a], h[b] = h[b], h[a] }
func (h *positionHeap) Push(v any)        { *h = append(*h, v.(int)) }
func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
