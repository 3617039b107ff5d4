package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store indexes completed run manifests in Postgres, the optional
// persistence collaborator the batch CLI's audit subcommand queries
// instead of re-reading every run directory on disk. Grounded on
// internal/domain/artifacts/store.go's pgxpool query shape, narrowed
// from the full artifact-approval schema to a single manifest table
// keyed by content hash.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool. The caller owns the pool's
// lifecycle (Close).
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PutManifest indexes m, a no-op if a manifest with the same content
// hash is already present (a re-run of an identical Play/window/config
// triple).
func (s *Store) PutManifest(ctx context.Context, m Manifest) error {
	query := `
		INSERT INTO run_manifests (
			run_id, play_id, play_hash, symbol, window_from, window_to,
			bars_run, trade_count, ledger_count, config, hash, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (hash) DO NOTHING
	`
	config, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("artifact: marshal manifest config: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		m.RunID, m.PlayID, m.PlayHash, m.Symbol, m.WindowFrom, m.WindowTo,
		m.BarsRun, m.TradeCount, m.LedgerCount, config, m.Hash, m.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("artifact: insert manifest %s: %w", m.Hash, err)
	}
	return nil
}

// GetManifestByHash retrieves a previously indexed manifest.
func (s *Store) GetManifestByHash(ctx context.Context, hash string) (*Manifest, error) {
	query := `
		SELECT run_id, play_id, play_hash, symbol, window_from, window_to,
		       bars_run, trade_count, ledger_count, config, hash, computed_at
		FROM run_manifests
		WHERE hash = $1
	`
	var m Manifest
	var config []byte
	err := s.pool.QueryRow(ctx, query, hash).Scan(
		&m.RunID, &m.PlayID, &m.PlayHash, &m.Symbol, &m.WindowFrom, &m.WindowTo,
		&m.BarsRun, &m.TradeCount, &m.LedgerCount, &config, &m.Hash, &m.ComputedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: query manifest %s: %w", hash, err)
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &m.Config); err != nil {
			return nil, fmt.Errorf("artifact: decode manifest config: %w", err)
		}
	}
	return &m, nil
}

// ListBySymbol returns every indexed manifest for symbol, most recent
// first — the audit subcommand's primary query.
func (s *Store) ListBySymbol(ctx context.Context, symbol string) ([]*Manifest, error) {
	query := `
		SELECT run_id, play_id, play_hash, symbol, window_from, window_to,
		       bars_run, trade_count, ledger_count, config, hash, computed_at
		FROM run_manifests
		WHERE symbol = $1
		ORDER BY computed_at DESC
	`
	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("artifact: list manifests for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []*Manifest
	for rows.Next() {
		var m Manifest
		var config []byte
		if err := rows.Scan(
			&m.RunID, &m.PlayID, &m.PlayHash, &m.Symbol, &m.WindowFrom, &m.WindowTo,
			&m.BarsRun, &m.TradeCount, &m.LedgerCount, &config, &m.Hash, &m.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("artifact: scan manifest row: %w", err)
		}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &m.Config); err != nil {
				return nil, fmt.Errorf("artifact: decode manifest config: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
