package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/fortuna/pythia/internal/store"
)

// PerformanceRepository appends accuracy snapshots.
type PerformanceRepository struct {
	db *store.Database
}

func NewPerformanceRepository(db *store.Database) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// Record inserts entry and stamps the graded predictions in one
// transaction, so a failed write leaves every prediction gradeable again.
func (r *PerformanceRepository) Record(ctx context.Context, entry *store.PerformanceEntry, gameIDs []string) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding performance entry: %w", err)
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO performance_log (recorded_at, graded, payload) VALUES ($1, $2, $3)`,
		entry.Timestamp, entry.Graded, payload,
	)
	if err != nil {
		return fmt.Errorf("inserting performance entry: %w", err)
	}

	if len(gameIDs) > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE predictions SET graded_at = $1 WHERE game_id = ANY($2) AND graded_at IS NULL`,
			entry.Timestamp, pq.StringArray(gameIDs),
		)
		if err != nil {
			return fmt.Errorf("marking predictions graded: %w", err)
		}
	}

	return tx.Commit()
}

// ListRecent returns the newest entries first.
func (r *PerformanceRepository) ListRecent(ctx context.Context, limit int) ([]*store.PerformanceEntry, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT payload FROM performance_log ORDER BY recorded_at DESC, entry_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying performance log: %w", err)
	}
	defer rows.Close()

	var out []*store.PerformanceEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning performance entry: %w", err)
		}
		entry := &store.PerformanceEntry{}
		if err := json.Unmarshal(payload, entry); err != nil {
			return nil, fmt.Errorf("decoding performance entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
