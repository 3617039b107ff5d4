// Package feed owns the immutable OHLCV arrays for a run and exposes
// O(1) indexed access plus closed-bar detection for non-exec timeframes.
//
// Grounded on libs/dataset/registry.go's validated, content-hashed,
// read-only dataset catalogue — trimmed here to exactly what a
// backtest run needs: dense per-role bar arrays, binary-searchable by
// timestamp, never mutated after construction.
package feed

import (
	"sort"
	"time"

	"btcore/internal/bar"
)

// Bars is a dense, time-sorted, immutable array of bars for one timeframe.
type Bars struct {
	TF   bar.Timeframe
	data []bar.Bar
}

// Len returns the number of bars.
func (b *Bars) Len() int { return len(b.data) }

// At returns the bar at index i. Panics on out-of-range i — callers are
// expected to have validated indices against Len().
func (b *Bars) At(i int) bar.Bar { return b.data[i] }

// Store owns the per-role bar arrays for one backtest run. Once built via
// New, it is never mutated; all reads are O(1) or O(log n) and safe for
// concurrent use by virtue of being read-only.
type Store struct {
	roles map[bar.Role]*Bars
}

// RoleSeries is the raw input for one role: its timeframe and dense bars,
// already time-sorted ascending by TsOpen.
type RoleSeries struct {
	Role bar.Role
	TF   bar.Timeframe
	Bars []bar.Bar
}

// New validates and constructs a Store from the given per-role series.
// Validation enforces: OHLC consistency (bar.Bar.Validate), strictly
// monotone increasing TsOpen, and uniform spacing equal to the
// timeframe's duration. A spacing violation is reported as a DataError.
func New(series []RoleSeries) (*Store, error) {
	roles := make(map[bar.Role]*Bars, len(series))
	for _, s := range series {
		dur, ok := s.TF.Duration()
		if !ok {
			return nil, dataGap(string(s.Role), "unknown timeframe %q", s.TF)
		}
		if len(s.Bars) == 0 {
			return nil, dataGap(string(s.Role), "empty bar series")
		}
		sorted := append([]bar.Bar(nil), s.Bars...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].TsOpen.Before(sorted[j].TsOpen) })

		for i, b := range sorted {
			if err := b.Validate(); err != nil {
				return nil, dataGap(string(s.Role), "bar %d: %v", i, err)
			}
			if !b.TsClose.Equal(b.TsOpen.Add(dur)) {
				return nil, dataGap(string(s.Role), "bar %d: ts_close != ts_open + timeframe duration", i)
			}
			if i == 0 {
				continue
			}
			prev := sorted[i-1]
			if !b.TsOpen.After(prev.TsOpen) {
				return nil, dataGap(string(s.Role), "bar %d: ts_open not strictly increasing", i)
			}
			if !b.TsOpen.Equal(prev.TsOpen.Add(dur)) {
				return nil, dataGap(string(s.Role), "bar %d: gap or overlap, expected ts_open=%s got %s",
					i, prev.TsOpen.Add(dur), b.TsOpen)
			}
		}

		roles[s.Role] = &Bars{TF: s.TF, data: sorted}
	}
	return &Store{roles: roles}, nil
}

// BarsFor returns the dense bar array for role, or nil if the role isn't
// configured for this run.
func (s *Store) BarsFor(role bar.Role) *Bars {
	return s.roles[role]
}

// IndexAtOrBefore returns the index of the last bar in role whose TsClose
// is <= ts, via binary search. ok is false if ts precedes the first
// closed bar of that role.
func (s *Store) IndexAtOrBefore(role bar.Role, ts time.Time) (idx int, ok bool) {
	b := s.roles[role]
	if b == nil || len(b.data) == 0 {
		return 0, false
	}
	// data is sorted by TsOpen ascending, and TsClose is monotone with it,
	// so TsClose is also sorted ascending.
	n := len(b.data)
	i := sort.Search(n, func(i int) bool { return b.data[i].TsClose.After(ts) })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// IsCloseOf reports whether some bar in role closes exactly at ts.
func (s *Store) IsCloseOf(role bar.Role, ts time.Time) bool {
	idx, ok := s.IndexAtOrBefore(role, ts)
	if !ok {
		return false
	}
	return s.roles[role].data[idx].TsClose.Equal(ts)
}
