package snapshot

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/store"
)

func fixedWriter(t *testing.T, at time.Time) *Writer {
	t.Helper()
	w := NewWriter(t.TempDir(), nil)
	w.now = func() time.Time { return at }
	return w
}

func TestWriteEnvelope(t *testing.T) {
	at := time.Date(2025, 11, 16, 18, 5, 0, 0, time.UTC)
	w := fixedWriter(t, at)

	wrote, err := w.Write(LeagueLatest("nfl"), []string{"401", "402"})
	require.NoError(t, err)
	assert.True(t, wrote)

	raw, err := os.ReadFile(filepath.Join(w.Dir(), "nfl_latest.json"))
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.JSONEq(t, `1`, string(env["schema_version"]))
	assert.JSONEq(t, `"20251116_1805"`, string(env["timestamp"]))
	assert.JSONEq(t, `2`, string(env["count"]))
	assert.JSONEq(t, `["401","402"]`, string(env["data"]))

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteSkipsUnchangedData(t *testing.T) {
	w := fixedWriter(t, time.Date(2025, 11, 16, 18, 5, 0, 0, time.UTC))
	_, err := w.Write(Weather, map[string]int{"401": 1})
	require.NoError(t, err)

	w.now = func() time.Time { return time.Date(2025, 11, 16, 18, 35, 0, 0, time.UTC) }
	wrote, err := w.Write(Weather, map[string]int{"401": 1})
	require.NoError(t, err)
	assert.False(t, wrote)

	var out map[string]int
	env, err := NewReader(w.Dir()).Read(Weather, &out)
	require.NoError(t, err)
	assert.Equal(t, "20251116_1805", env.Timestamp)

	wrote, err = w.Write(Weather, map[string]int{"401": 2})
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestReadMissing(t *testing.T) {
	_, err := NewReader(t.TempDir()).Read(Predictions, nil)
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestReadRejectsOtherSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Combined), []byte(`{"schema_version":2,"data":[]}`), 0o644))

	_, err := NewReader(dir).Read(Combined, nil)
	assert.Error(t, err)
}

func TestAppendPerformance(t *testing.T) {
	w := fixedWriter(t, time.Date(2025, 12, 1, 4, 0, 0, 0, time.UTC))

	require.NoError(t, w.AppendPerformance(&store.PerformanceEntry{Graded: 3}))
	require.NoError(t, w.AppendPerformance(&store.PerformanceEntry{Graded: 5}))

	var log []*store.PerformanceEntry
	env, err := NewReader(w.Dir()).Read(PerformanceLog, &log)
	require.NoError(t, err)
	assert.Equal(t, 2, env.Count)
	require.Len(t, log, 2)
	assert.Equal(t, 5, log[1].Graded)
}

func TestExportPredictions(t *testing.T) {
	preds := []*store.Prediction{{
		GameID:        "401",
		Sport:         "nfl",
		StartTime:     time.Date(2025, 11, 16, 18, 0, 0, 0, time.UTC),
		Matchup:       "CIN @ KC",
		Favorite:      "Kansas City Chiefs",
		Spread:        store.Float(-6.5),
		SU:            &store.Pick{Selection: "Kansas City Chiefs ML", Confidence: 65.2},
		MissingInputs: []string{"weather", "referees"},
	}}

	var buf bytes.Buffer
	require.NoError(t, ExportPredictions(&buf, preds))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "game_id,sport,start_time,matchup,favorite,spread,total,su_pick"))
	assert.Contains(t, lines[1], "401,nfl,2025-11-16T18:00Z,CIN @ KC,Kansas City Chiefs,-6.5,,Kansas City Chiefs ML,65.2")
	assert.True(t, strings.HasSuffix(lines[1], "weather|referees"))
}

func TestExportPerformance(t *testing.T) {
	entries := []*store.PerformanceEntry{{
		Timestamp: time.Date(2025, 12, 1, 4, 0, 0, 0, time.UTC),
		Graded:    4,
		SU:        store.MarketRecord{Correct: 3, Total: 4, Pct: 75},
		BySport: map[string]map[string]store.MarketRecord{
			"nfl": {store.MarketSU: {Correct: 2, Total: 2, Pct: 100}},
			"nba": {store.MarketSU: {Correct: 1, Total: 2, Pct: 50}},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, ExportPerformance(&buf, entries))

	var rows []*performanceRow
	require.NoError(t, gocsv.UnmarshalBytes(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "all", rows[0].Sport)
	assert.Equal(t, 75.0, rows[0].SUPct)
	assert.Equal(t, "nba", rows[1].Sport)
	assert.Equal(t, 2, rows[1].Graded)
	assert.Equal(t, "nfl", rows[2].Sport)
	assert.Equal(t, "20251201_0400", rows[2].Timestamp)
}

func TestExportCSV(t *testing.T) {
	w := fixedWriter(t, time.Now())
	require.NoError(t, w.ExportCSV(nil, nil))

	for _, name := range []string{PredictionsCSV, PerformanceCSV} {
		_, err := os.Stat(filepath.Join(w.Dir(), name))
		assert.NoError(t, err, name)
	}
}
