package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/pythia/internal/store"
)

// PredictionRepository stores the latest prediction per game.
type PredictionRepository struct {
	db *store.Database
}

func NewPredictionRepository(db *store.Database) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Upsert replaces the stored prediction for a game. A graded prediction keeps its grade.
func (r *PredictionRepository) Upsert(ctx context.Context, p *store.Prediction) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding prediction %s: %w", p.GameID, err)
	}

	query := `
		INSERT INTO predictions (game_id, sport, start_time, matchup, max_confidence,
			source, model_version, payload, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_id) DO UPDATE SET
			sport = EXCLUDED.sport,
			start_time = EXCLUDED.start_time,
			matchup = EXCLUDED.matchup,
			max_confidence = EXCLUDED.max_confidence,
			source = EXCLUDED.source,
			model_version = EXCLUDED.model_version,
			payload = EXCLUDED.payload,
			generated_at = EXCLUDED.generated_at
		WHERE predictions.graded_at IS NULL
	`

	_, err = r.db.DB().ExecContext(ctx, query,
		p.GameID, p.Sport, p.StartTime, p.Matchup, p.MaxConfidence(),
		p.Source, nullString(p.ModelVersion), payload, p.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting prediction %s: %w", p.GameID, err)
	}
	return nil
}

// GetByGameID returns the stored prediction for one game.
func (r *PredictionRepository) GetByGameID(ctx context.Context, gameID string) (*store.Prediction, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT payload, graded_at FROM predictions WHERE game_id = $1`, gameID)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prediction %s: %w", gameID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying prediction: %w", err)
	}
	return p, nil
}

// ListLatest returns predictions ordered by start time, filtered by sport
// (empty for all). With market empty minConfidence applies to the highest
// pick, otherwise to that market's pick, and predictions without it are
// excluded before the limit.
func (r *PredictionRepository) ListLatest(ctx context.Context, sport, market string, minConfidence float64, limit int) ([]*store.Prediction, error) {
	query := `
		SELECT payload, graded_at
		FROM predictions
		WHERE ($1::text = '' OR sport = $1::text)
			AND (
				($2::text = '' AND max_confidence >= $3)
				OR ($2::text <> '' AND (payload->($2::text)->>'confidence')::float8 >= $3)
			)
		ORDER BY start_time, game_id
		LIMIT $4
	`
	return r.query(ctx, query, sport, market, minConfidence, limit)
}

// ListUngraded returns predictions for games that started before the cutoff
// and have not been graded yet.
func (r *PredictionRepository) ListUngraded(ctx context.Context, before time.Time) ([]*store.Prediction, error) {
	query := `
		SELECT payload, graded_at
		FROM predictions
		WHERE graded_at IS NULL AND start_time < $1
		ORDER BY start_time
	`
	return r.query(ctx, query, before)
}

func (r *PredictionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*store.Prediction, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var preds []*store.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

func scanPrediction(scanner interface {
	Scan(dest ...interface{}) error
}) (*store.Prediction, error) {
	var (
		payload  []byte
		gradedAt sql.NullTime
	)
	if err := scanner.Scan(&payload, &gradedAt); err != nil {
		return nil, err
	}
	p := &store.Prediction{}
	if err := json.Unmarshal(payload, p); err != nil {
		return nil, fmt.Errorf("decoding prediction payload: %w", err)
	}
	if gradedAt.Valid {
		t := gradedAt.Time
		p.GradedAt = &t
	}
	return p, nil
}
