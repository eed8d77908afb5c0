package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/pythia/internal/store"
)

// ResultRepository stores completed games with their closing line and labels.
type ResultRepository struct {
	db *store.Database
}

func NewResultRepository(db *store.Database) *ResultRepository {
	return &ResultRepository{db: db}
}

const resultColumns = `game_id, sport, start_time, home_team, away_team, fav_team, dog_team,
	fav_is_home, fav_spread, total_line, home_score, away_score, referees,
	home_win, fav_cover, went_over, completed_at`

// Upsert inserts or refreshes a result. Re-collecting a game updates it in place.
func (r *ResultRepository) Upsert(ctx context.Context, res *store.Result) error {
	query := `
		INSERT INTO results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (game_id) DO UPDATE SET
			fav_team = COALESCE(EXCLUDED.fav_team, results.fav_team),
			dog_team = COALESCE(EXCLUDED.dog_team, results.dog_team),
			fav_is_home = EXCLUDED.fav_is_home,
			fav_spread = COALESCE(EXCLUDED.fav_spread, results.fav_spread),
			total_line = COALESCE(EXCLUDED.total_line, results.total_line),
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			referees = CASE WHEN cardinality(EXCLUDED.referees) > 0 THEN EXCLUDED.referees ELSE results.referees END,
			home_win = EXCLUDED.home_win,
			fav_cover = EXCLUDED.fav_cover,
			went_over = EXCLUDED.went_over,
			completed_at = EXCLUDED.completed_at
	`

	referees := res.Referees
	if referees == nil {
		referees = []string{}
	}

	_, err := r.db.DB().ExecContext(ctx, query,
		res.GameID, res.Sport, res.StartTime, res.HomeTeam, res.AwayTeam,
		nullString(res.FavTeam), nullString(res.DogTeam), res.FavIsHome,
		nullFloat(res.FavSpread), nullFloat(res.TotalLine),
		res.HomeScore, res.AwayScore, pq.StringArray(referees),
		res.HomeWin, nullBool(res.FavCover), nullBool(res.Over), res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting result %s: %w", res.GameID, err)
	}
	return nil
}

func (r *ResultRepository) GetByGameID(ctx context.Context, gameID string) (*store.Result, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE game_id = $1`, gameID)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", gameID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying result: %w", err)
	}
	return res, nil
}

// ListSince returns results for games that started at or after since.
func (r *ResultRepository) ListSince(ctx context.Context, sport string, since time.Time) ([]*store.Result, error) {
	query := `SELECT ` + resultColumns + `
		FROM results
		WHERE ($1 = '' OR sport = $1) AND start_time >= $2
		ORDER BY start_time, game_id`
	return r.query(ctx, query, sport, since)
}

// ListAll returns every stored result in start order.
func (r *ResultRepository) ListAll(ctx context.Context) ([]*store.Result, error) {
	return r.query(ctx, `SELECT `+resultColumns+` FROM results ORDER BY start_time, game_id`)
}

func (r *ResultRepository) query(ctx context.Context, query string, args ...interface{}) ([]*store.Result, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []*store.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanResult(scanner interface {
	Scan(dest ...interface{}) error
}) (*store.Result, error) {
	var (
		res                store.Result
		favTeam, dogTeam   sql.NullString
		favSpread, total   sql.NullFloat64
		referees           pq.StringArray
		favCover, wentOver sql.NullBool
	)
	err := scanner.Scan(
		&res.GameID, &res.Sport, &res.StartTime, &res.HomeTeam, &res.AwayTeam,
		&favTeam, &dogTeam, &res.FavIsHome, &favSpread, &total,
		&res.HomeScore, &res.AwayScore, &referees,
		&res.HomeWin, &favCover, &wentOver, &res.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	res.FavTeam = favTeam.String
	res.DogTeam = dogTeam.String
	res.FavSpread = floatPtr(favSpread)
	res.TotalLine = floatPtr(total)
	res.Referees = []string(referees)
	res.FavCover = boolPtr(favCover)
	res.Over = boolPtr(wentOver)
	return &res, nil
}
