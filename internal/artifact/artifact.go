// Package artifact writes a completed run's outputs — trades, equity
// curve, metrics, and a content-hashed manifest — as newline-delimited
// JSON. Grounded on internal/domain/artifacts/artifact.go's
// canonical-payload/content-hash pattern, narrowed from an approval
// workflow record to a run manifest.
package artifact

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"btcore/internal/perf"
	"btcore/internal/runner"
	"btcore/internal/testsupport"
)

// Manifest records the identity and shape of one completed run: which
// Play produced it, over what window, how many rows each artifact
// holds, and a content hash over all of that so two runs of an
// identical (Play, window, config) triple are recognizable as the same
// run without re-reading the trade/equity files.
type Manifest struct {
	RunID       uuid.UUID      `json:"run_id"`
	PlayID      string         `json:"play_id"`
	PlayHash    string         `json:"play_hash"`
	Symbol      string         `json:"symbol"`
	WindowFrom  time.Time      `json:"window_from"`
	WindowTo    time.Time      `json:"window_to"`
	BarsRun     int            `json:"bars_run"`
	TradeCount  int            `json:"trade_count"`
	LedgerCount int            `json:"ledger_count"`
	Config      map[string]any `json:"config,omitempty"`
	ComputedAt  time.Time      `json:"computed_at"`
	Hash        string         `json:"hash"`
}

// CanonicalPayload builds the sorted-key, timezone-normalized
// representation of the manifest used for hashing — everything except
// the per-run run_id, computed_at and the hash field itself, so the hash
// covers exactly what it certifies.
func (m Manifest) CanonicalPayload() ([]byte, error) {
	canonical := map[string]any{
		"play_id":      m.PlayID,
		"play_hash":    m.PlayHash,
		"symbol":       m.Symbol,
		"window_from":  m.WindowFrom.UTC().Format(time.RFC3339),
		"window_to":    m.WindowTo.UTC().Format(time.RFC3339),
		"bars_run":     m.BarsRun,
		"trade_count":  m.TradeCount,
		"ledger_count": m.LedgerCount,
		"config":       sortedMap(m.Config),
	}
	return json.Marshal(canonical)
}

// ComputeHash returns the SHA-256 hex digest of the manifest's canonical
// payload.
func (m Manifest) ComputeHash() (string, error) {
	payload, err := m.CanonicalPayload()
	if err != nil {
		return "", fmt.Errorf("artifact: canonicalize manifest: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func sortedMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

// RunMeta is the identity/window information the orchestrator knows
// about a run but that Result itself does not carry.
type RunMeta struct {
	RunID      uuid.UUID
	PlayID     string
	PlayHash   string
	Symbol     string
	WindowFrom time.Time
	WindowTo   time.Time
	Config     map[string]any
}

// Writer owns one run's output directory, writing each artifact
// append-only and exactly once per run, with a single writer per
// output file.
type Writer struct {
	dir   string
	clock testsupport.Clock
}

// NewWriter creates (if needed) dir and returns a Writer scoped to it.
// A nil clock defaults to wall-clock time; tests inject a FixedClock so
// the manifest's computed_at stays deterministic.
func NewWriter(dir string, clock testsupport.Clock) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create output dir %s: %w", dir, err)
	}
	if clock == nil {
		clock = testsupport.SystemClock{}
	}
	return &Writer{dir: dir, clock: clock}, nil
}

// WriteAll writes trades.ndjson, equity.ndjson, and metrics.ndjson from
// res, then computes and writes manifest.ndjson last (it is the only
// file whose content depends on the other three having already been
// written, via their row counts).
func (w *Writer) WriteAll(res *runner.Result, meta RunMeta) (*Manifest, error) {
	if err := writeNDJSON(filepath.Join(w.dir, "trades.ndjson"), res.Trades); err != nil {
		return nil, err
	}
	if err := writeNDJSON(filepath.Join(w.dir, "equity.ndjson"), res.Equity); err != nil {
		return nil, err
	}
	if err := writeNDJSON(filepath.Join(w.dir, "metrics.ndjson"), []perf.Stats{res.Stats}); err != nil {
		return nil, err
	}

	m := Manifest{
		RunID:       meta.RunID,
		PlayID:      meta.PlayID,
		PlayHash:    meta.PlayHash,
		Symbol:      meta.Symbol,
		WindowFrom:  meta.WindowFrom,
		WindowTo:    meta.WindowTo,
		BarsRun:     res.BarsRun,
		TradeCount:  len(res.Trades),
		LedgerCount: len(res.Ledger),
		Config:      meta.Config,
		ComputedAt:  w.clock.Now().UTC(),
	}
	hash, err := m.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("artifact: compute manifest hash: %w", err)
	}
	m.Hash = hash

	if err := writeNDJSON(filepath.Join(w.dir, "manifest.ndjson"), []Manifest{m}); err != nil {
		return nil, err
	}
	return &m, nil
}

// writeNDJSON writes items as one JSON object per line, truncating any
// existing file at path.
func writeNDJSON[T any](path string, items []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("artifact: create %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("artifact: encode row in %s: %w", path, err)
		}
	}
	return bw.Flush()
}
