package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/store"
)

func newMockDB(t *testing.T) (*store.Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return store.NewFromDB(conn, nil), mock
}

func sampleGame() *store.Game {
	return &store.Game{
		ID:        "401671789",
		Sport:     "nfl",
		StartTime: time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC),
		Status:    store.StatusScheduled,
		Home:      store.Team{ID: "12", Name: "Kansas City Chiefs", Abbreviation: "KC"},
		Away:      store.Team{ID: "4", Name: "Cincinnati Bengals", Abbreviation: "CIN"},
		Venue:     store.Venue{Name: "GEHA Field at Arrowhead Stadium"},
	}
}

func TestGameRepositoryUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)
	g := sampleGame()

	mock.ExpectExec("INSERT INTO games").
		WithArgs(g.ID, g.Sport, g.StartTime, g.Status, "Kansas City Chiefs", "Cincinnati Bengals",
			nil, nil, "GEHA Field at Arrowhead Stadium", sqlmock.AnyArg(),
			store.StatusInProgress, store.StatusFinal).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), g))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameRepositoryUpsertFreezesStartedLine(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)
	g := sampleGame()
	g.Status = store.StatusInProgress
	g.Odds = &store.Odds{Details: "KC -3.5", Spread: store.Float(-3.5)}

	mock.ExpectExec(`(?s)INSERT INTO games.*EXCLUDED\.status IN \(\$11, \$12\) OR EXCLUDED\.start_time <= NOW\(\).*` +
		`jsonb_set\(EXCLUDED\.payload, '\{odds\}', games\.payload->'odds'\).*'\{line\}'`).
		WithArgs(g.ID, g.Sport, g.StartTime, store.StatusInProgress, "Kansas City Chiefs", "Cincinnati Bengals",
			nil, nil, "GEHA Field at Arrowhead Stadium", sqlmock.AnyArg(),
			store.StatusInProgress, store.StatusFinal).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), g))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameRepositoryUpsertAllRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO games").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO games").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := repo.UpsertAll(context.Background(), []*store.Game{sampleGame(), sampleGame()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameRepositoryGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)

	payload, err := json.Marshal(sampleGame())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM games").
		WithArgs("401671789").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))
	mock.ExpectQuery("SELECT payload FROM games").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	g, err := repo.GetByID(context.Background(), "401671789")
	require.NoError(t, err)
	assert.Equal(t, "KC", g.Home.Abbreviation)
	assert.Equal(t, "CIN@KC", g.Matchup())

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGameRepositoryListUpcoming(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGameRepository(db)
	from := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)

	payload, _ := json.Marshal(sampleGame())
	mock.ExpectQuery("FROM games").
		WithArgs("nfl", from, 50).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload).AddRow(payload))

	games, err := repo.ListUpcoming(context.Background(), "nfl", from, 50)
	require.NoError(t, err)
	assert.Len(t, games, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPredictionRepositoryRoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPredictionRepository(db)
	now := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)

	pred := &store.Prediction{
		GameID:      "401671789",
		Sport:       "nfl",
		Matchup:     "CIN@KC",
		StartTime:   now.Add(5 * time.Hour),
		SU:          &store.Pick{Market: store.MarketSU, Selection: "KC ML", Side: store.SideHome, Confidence: 71.2},
		OU:          &store.Pick{Market: store.MarketOU, Selection: "Under 47.5", Side: store.SideUnder, Confidence: 58},
		Source:      "rule",
		GeneratedAt: now,
	}

	mock.ExpectExec("INSERT INTO predictions").
		WithArgs(pred.GameID, "nfl", pred.StartTime, "CIN@KC", 71.2, "rule", nil, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Upsert(context.Background(), pred))

	payload, _ := json.Marshal(pred)
	graded := now.Add(24 * time.Hour)
	mock.ExpectQuery("FROM predictions").
		WithArgs("", "", 70.0, 10).
		WillReturnRows(sqlmock.NewRows([]string{"payload", "graded_at"}).AddRow(payload, graded))

	preds, err := repo.ListLatest(context.Background(), "", "", 70, 10)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "KC ML", preds[0].SU.Selection)
	require.NotNil(t, preds[0].GradedAt)
	assert.True(t, preds[0].GradedAt.Equal(graded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPredictionRepositoryListLatestFiltersMarketBeforeLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPredictionRepository(db)

	mock.ExpectQuery(`(?s)FROM predictions.*\(payload->\(\$2::text\)->>'confidence'\)::float8 >= \$3.*LIMIT \$4`).
		WithArgs("nfl", store.MarketATS, 70.0, 3).
		WillReturnRows(sqlmock.NewRows([]string{"payload", "graded_at"}))

	preds, err := repo.ListLatest(context.Background(), "nfl", store.MarketATS, 70, 3)
	require.NoError(t, err)
	assert.Empty(t, preds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryListSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResultRepository(db)
	start := time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)

	cols := []string{"game_id", "sport", "start_time", "home_team", "away_team", "fav_team", "dog_team",
		"fav_is_home", "fav_spread", "total_line", "home_score", "away_score", "referees",
		"home_win", "fav_cover", "went_over", "completed_at"}
	mock.ExpectQuery("FROM results").
		WithArgs("nfl", start).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"401671789", "nfl", start, "Kansas City Chiefs", "Cincinnati Bengals", "Kansas City Chiefs", "Cincinnati Bengals",
			true, -6.5, 47.5, 27, 20, `{"Shawn Hochuli","Alex Kemp"}`,
			true, true, nil, start.Add(4*time.Hour),
		))

	results, err := repo.ListSince(context.Background(), "nfl", start)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, []string{"Shawn Hochuli", "Alex Kemp"}, r.Referees)
	require.NotNil(t, r.FavSpread)
	assert.Equal(t, -6.5, *r.FavSpread)
	require.NotNil(t, r.FavCover)
	assert.True(t, *r.FavCover)
	assert.Nil(t, r.Over)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResultRepository(db)

	res := &store.Result{GameID: "1", Sport: "nba", HomeTeam: "A", AwayTeam: "B", HomeScore: 101, AwayScore: 99}
	res.Label()

	mock.ExpectExec("INSERT INTO results").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Upsert(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPerformanceRepository(db)
	ts := time.Date(2025, 9, 8, 4, 0, 0, 0, time.UTC)

	entry := &store.PerformanceEntry{
		Timestamp: ts,
		Graded:    12,
		SU:        store.MarketRecord{Correct: 8, Total: 12, Pct: 66.67},
	}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO performance_log").
		WithArgs(ts, 12, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE predictions SET graded_at").
		WithArgs(ts, pq.StringArray{"1", "2"}).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	require.NoError(t, repo.Record(context.Background(), entry, []string{"1", "2"}))

	payload, _ := json.Marshal(entry)
	mock.ExpectQuery("FROM performance_log").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	entries, err := repo.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 66.67, entries[0].SU.Pct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepositoryRecordRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPerformanceRepository(db)
	entry := &store.PerformanceEntry{Timestamp: time.Date(2025, 9, 8, 4, 0, 0, 0, time.UTC), Graded: 1}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO performance_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE predictions SET graded_at").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := repo.Record(context.Background(), entry, []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}
