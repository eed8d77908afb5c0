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

// GameRepository handles game data access. The full enriched record is kept
// in payload; the scalar columns exist for filtering and ordering.
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Upsert inserts or updates a game keyed by its ESPN event id. Once a game
// has started its stored odds and line are frozen, so the pre-game line
// survives later refreshes.
func (r *GameRepository) Upsert(ctx context.Context, game *store.Game) error {
	return upsertGame(ctx, r.db.DB(), game)
}

// UpsertAll stores every game in one transaction.
func (r *GameRepository) UpsertAll(ctx context.Context, games []*store.Game) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin game upsert: %w", err)
	}
	defer tx.Rollback()

	for _, g := range games {
		if err := upsertGame(ctx, tx, g); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertGame(ctx context.Context, db execer, game *store.Game) error {
	payload, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("encoding game %s: %w", game.ID, err)
	}

	query := `
		INSERT INTO games (game_id, sport, start_time, status, home_team, away_team,
			home_score, away_score, venue, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (game_id) DO UPDATE SET
			sport = EXCLUDED.sport,
			start_time = EXCLUDED.start_time,
			status = EXCLUDED.status,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			venue = EXCLUDED.venue,
			payload = CASE
				WHEN (EXCLUDED.status IN ($11, $12) OR EXCLUDED.start_time <= NOW())
					AND jsonb_typeof(games.payload->'odds') = 'object'
				THEN jsonb_set(
					jsonb_set(EXCLUDED.payload, '{odds}', games.payload->'odds'),
					'{line}', COALESCE(games.payload->'line', EXCLUDED.payload->'line'))
				ELSE EXCLUDED.payload
			END,
			updated_at = NOW()
	`

	_, err = db.ExecContext(ctx, query,
		game.ID, game.Sport, game.StartTime, game.Status, game.Home.Name, game.Away.Name,
		nullInt(game.HomeScore), nullInt(game.AwayScore), nullString(game.Venue.Name), payload,
		store.StatusInProgress, store.StatusFinal,
	)
	if err != nil {
		return fmt.Errorf("upserting game %s: %w", game.ID, err)
	}
	return nil
}

// GetByID finds a game by its ESPN event id.
func (r *GameRepository) GetByID(ctx context.Context, gameID string) (*store.Game, error) {
	var payload []byte
	err := r.db.DB().QueryRowContext(ctx, `SELECT payload FROM games WHERE game_id = $1`, gameID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", gameID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}
	return decodeGame(payload)
}

// ListUpcoming returns games starting at or after from. An empty sport means all sports.
func (r *GameRepository) ListUpcoming(ctx context.Context, sport string, from time.Time, limit int) ([]*store.Game, error) {
	query := `
		SELECT payload
		FROM games
		WHERE ($1 = '' OR sport = $1) AND start_time >= $2
		ORDER BY start_time, game_id
		LIMIT $3
	`

	rows, err := r.db.DB().QueryContext(ctx, query, sport, from, limit)
	if err != nil {
		return nil, fmt.Errorf("querying upcoming games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// ListByDate returns the games whose start falls on date's calendar day in loc.
func (r *GameRepository) ListByDate(ctx context.Context, sport string, date time.Time, loc *time.Location) ([]*store.Game, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := date.In(loc)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	endOfDay := startOfDay.AddDate(0, 0, 1)

	query := `
		SELECT payload
		FROM games
		WHERE ($1 = '' OR sport = $1) AND start_time >= $2 AND start_time < $3
		ORDER BY
			CASE status
				WHEN 'in_progress' THEN 1
				WHEN 'scheduled' THEN 2
				WHEN 'final' THEN 3
				ELSE 4
			END,
			start_time
	`

	rows, err := r.db.DB().QueryContext(ctx, query, sport, startOfDay, endOfDay)
	if err != nil {
		return nil, fmt.Errorf("querying games by date: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

func scanGames(rows *sql.Rows) ([]*store.Game, error) {
	var games []*store.Game
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		g, err := decodeGame(payload)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func decodeGame(payload []byte) (*store.Game, error) {
	g := &store.Game{}
	if err := json.Unmarshal(payload, g); err != nil {
		return nil, fmt.Errorf("decoding game payload: %w", err)
	}
	return g, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return store.Float(v.Float64)
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return store.Bool(v.Bool)
}
