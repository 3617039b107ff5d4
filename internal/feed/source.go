package feed

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"btcore/internal/bar"
)

// Source is the narrow collaborator the core consumes historical data
// through. A live adapter implements the same interface against a
// streaming feed instead of a file — the loop and everything above it
// never knows the difference.
type Source interface {
	// LoadRole reads the dense, time-sorted bar series for one role.
	LoadRole(ctx context.Context, role bar.Role, tf bar.Timeframe) ([]bar.Bar, error)
	// LoadFunding reads the funding-rate event series for the run's
	// symbol. May return (nil, nil) if no funding data is configured.
	LoadFunding(ctx context.Context) ([]FundingEvent, error)
}

// FundingEvent is one funding-rate application point.
type FundingEvent struct {
	Timestamp time.Time
	Rate      float64 // e.g. 0.0001 for +0.01%
}

// CSVSource loads OHLCV bars from local CSV files, one file per role, plus
// an optional funding CSV. Columns: ts_open_unix,open,high,low,close,volume[,turnover].
//
// Grounded on libs/dataset/registry.go's CSV ingestion path, trimmed to
// the columns the core's Bar type needs and content-hashed the same way
// (SHA-256 over the raw file bytes) so a batch run can detect a mutated
// input file breaking reproducibility.
type CSVSource struct {
	RolePaths   map[bar.Role]string
	FundingPath string // optional
}

// FileHash returns the SHA-256 hex digest of the file at path, for
// detecting silent mutation of input data between runs. The run manifest
// has no field for it and the run path does not call it.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("feed: hash %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("feed: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *CSVSource) LoadRole(ctx context.Context, role bar.Role, tf bar.Timeframe) ([]bar.Bar, error) {
	path, ok := s.RolePaths[role]
	if !ok {
		return nil, fmt.Errorf("feed: no CSV configured for role %s", role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()

	dur, ok := tf.Duration()
	if !ok {
		return nil, dataGap(string(role), "unknown timeframe %q", tf)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out []bar.Bar
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read %s: %w", path, err)
		}
		if first {
			first = false
			if _, err := strconv.ParseInt(rec[0], 10, 64); err != nil {
				continue // header row
			}
		}
		if len(rec) < 6 {
			return nil, dataGap(string(role), "%s: row has %d columns, want >= 6", path, len(rec))
		}
		tsUnix, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, dataGap(string(role), "%s: bad timestamp %q", path, rec[0])
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, dataGap(string(role), "%s: bad numeric field %q", path, rec[i+1])
			}
			vals[i] = v
		}
		turnover := 0.0
		if len(rec) >= 7 {
			turnover, _ = strconv.ParseFloat(rec[6], 64)
		}
		tsOpen := time.Unix(tsUnix, 0).UTC()
		out = append(out, bar.Bar{
			Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
			Turnover: turnover,
			TsOpen:   tsOpen,
			TsClose:  tsOpen.Add(dur),
		})
	}
	return out, nil
}

func (s *CSVSource) LoadFunding(ctx context.Context) ([]FundingEvent, error) {
	if s.FundingPath == "" {
		return nil, nil
	}
	f, err := os.Open(s.FundingPath)
	if err != nil {
		return nil, fmt.Errorf("feed: open funding %s: %w", s.FundingPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out []FundingEvent
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read funding %s: %w", s.FundingPath, err)
		}
		tsUnix, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue // header row
		}
		rate, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("feed: bad funding rate %q", rec[1])
		}
		out = append(out, FundingEvent{Timestamp: time.Unix(tsUnix, 0).UTC(), Rate: rate})
	}
	return out, nil
}
