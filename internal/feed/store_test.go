package feed

import (
	"testing"
	"time"

	"btcore/internal/bar"
)

func mkBar(ts time.Time, dur time.Duration, o, h, l, c float64) bar.Bar {
	return bar.Bar{Open: o, High: h, Low: l, Close: c, TsOpen: ts, TsClose: ts.Add(dur)}
}

func TestNewBuildsIndexableStoreFromSortedBars(t *testing.T) {
	ts0 := time.Unix(0, 0).UTC()
	dur := time.Minute
	bars := []bar.Bar{
		mkBar(ts0, dur, 1, 2, 1, 1.5),
		mkBar(ts0.Add(dur), dur, 1.5, 2.5, 1.5, 2),
		mkBar(ts0.Add(2*dur), dur, 2, 3, 2, 2.5),
	}
	store, err := New([]RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: bars}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := store.BarsFor(bar.RoleLow)
	if got == nil || got.Len() != 3 {
		t.Fatalf("BarsFor(low_tf) = %v, want 3 bars", got)
	}
	if got.At(1).Close != 2 {
		t.Errorf("At(1).Close = %v, want 2", got.At(1).Close)
	}
}

func TestNewAcceptsUnsortedInputAndSortsByTsOpen(t *testing.T) {
	ts0 := time.Unix(0, 0).UTC()
	dur := time.Minute
	// deliberately out of order
	bars := []bar.Bar{
		mkBar(ts0.Add(dur), dur, 1.5, 2.5, 1.5, 2),
		mkBar(ts0, dur, 1, 2, 1, 1.5),
	}
	store, err := New([]RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: bars}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := store.BarsFor(bar.RoleLow)
	if !got.At(0).TsOpen.Equal(ts0) {
		t.Errorf("first bar after sort should be the earliest ts_open")
	}
}

func TestNewRejectsSpacingGapAsDataError(t *testing.T) {
	ts0 := time.Unix(0, 0).UTC()
	dur := time.Minute
	bars := []bar.Bar{
		mkBar(ts0, dur, 1, 2, 1, 1.5),
		mkBar(ts0.Add(3*dur), dur, 1.5, 2.5, 1.5, 2), // gap: skipped two bars
	}
	_, err := New([]RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: bars}})
	if err == nil {
		t.Fatalf("expected a DataError for a spacing gap")
	}
	if _, ok := err.(*DataError); !ok {
		t.Errorf("expected a *DataError, got %T: %v", err, err)
	}
}

func TestNewRejectsOHLCViolation(t *testing.T) {
	ts0 := time.Unix(0, 0).UTC()
	dur := time.Minute
	bars := []bar.Bar{
		mkBar(ts0, dur, 1, 0.5, 1, 1.5), // high below open: invalid
	}
	_, err := New([]RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: bars}})
	if err == nil {
		t.Fatalf("expected a DataError for an OHLC consistency violation")
	}
}

func TestNewRejectsEmptySeries(t *testing.T) {
	_, err := New([]RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: nil}})
	if err == nil {
		t.Fatalf("expected a DataError for an empty bar series")
	}
}

func TestIndexAtOrBeforeAndIsCloseOf(t *testing.T) {
	ts0 := time.Unix(0, 0).UTC()
	dur := 4 * time.Hour
	bars := []bar.Bar{
		mkBar(ts0, dur, 1, 2, 1, 1.5),
		mkBar(ts0.Add(dur), dur, 1.5, 2.5, 1.5, 2),
		mkBar(ts0.Add(2*dur), dur, 2, 3, 2, 2.5),
	}
	store, err := New([]RoleSeries{{Role: bar.RoleHigh, TF: bar.TF4h, Bars: bars}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// a timestamp strictly inside the second bar's open window resolves to
	// the first bar, since the second bar has not yet closed.
	mid := ts0.Add(dur).Add(time.Hour)
	idx, ok := store.IndexAtOrBefore(bar.RoleHigh, mid)
	if !ok || idx != 0 {
		t.Errorf("IndexAtOrBefore(mid-of-second-bar) = %v, %v; want 0, true", idx, ok)
	}

	// exactly at the second bar's close, it resolves to the second bar.
	closeOfSecond := ts0.Add(2 * dur)
	idx, ok = store.IndexAtOrBefore(bar.RoleHigh, closeOfSecond)
	if !ok || idx != 1 {
		t.Errorf("IndexAtOrBefore(close of second bar) = %v, %v; want 1, true", idx, ok)
	}
	if !store.IsCloseOf(bar.RoleHigh, closeOfSecond) {
		t.Errorf("IsCloseOf should be true exactly at a bar's ts_close")
	}

	// a timestamp before the first bar's close has no prior closed bar.
	before := ts0.Add(-time.Minute)
	if _, ok := store.IndexAtOrBefore(bar.RoleHigh, before); ok {
		t.Errorf("IndexAtOrBefore before the first close should report ok=false")
	}
}
