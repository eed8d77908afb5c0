package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/fortuna/pythia/internal/store"
)

// CSV export file names.
const (
	PredictionsCSV = "predictions.csv"
	PerformanceCSV = "performance.csv"
)

type predictionRow struct {
	GameID        string  `csv:"game_id"`
	Sport         string  `csv:"sport"`
	StartTime     string  `csv:"start_time"`
	Matchup       string  `csv:"matchup"`
	Favorite      string  `csv:"favorite"`
	Spread        string  `csv:"spread"`
	Total         string  `csv:"total"`
	SUPick        string  `csv:"su_pick"`
	SUConfidence  float64 `csv:"su_confidence"`
	ATSPick       string  `csv:"ats_pick"`
	ATSConfidence float64 `csv:"ats_confidence"`
	OUPick        string  `csv:"ou_pick"`
	OUConfidence  float64 `csv:"ou_confidence"`
	ProjectedHome float64 `csv:"projected_home"`
	ProjectedAway float64 `csv:"projected_away"`
	Source        string  `csv:"source"`
	Missing       string  `csv:"missing_inputs"`
}

type performanceRow struct {
	Timestamp  string  `csv:"timestamp"`
	Sport      string  `csv:"sport"`
	Graded     int     `csv:"graded"`
	SUCorrect  int     `csv:"su_correct"`
	SUTotal    int     `csv:"su_total"`
	SUPct      float64 `csv:"su_pct"`
	ATSCorrect int     `csv:"ats_correct"`
	ATSTotal   int     `csv:"ats_total"`
	ATSPct     float64 `csv:"ats_pct"`
	OUCorrect  int     `csv:"ou_correct"`
	OUTotal    int     `csv:"ou_total"`
	OUPct      float64 `csv:"ou_pct"`
}

// ExportPredictions writes one row per prediction.
func ExportPredictions(w io.Writer, preds []*store.Prediction) error {
	rows := make([]*predictionRow, 0, len(preds))
	for _, p := range preds {
		row := &predictionRow{
			GameID:        p.GameID,
			Sport:         p.Sport,
			StartTime:     p.StartTime.UTC().Format("2006-01-02T15:04Z"),
			Matchup:       p.Matchup,
			Favorite:      p.Favorite,
			Spread:        optional(p.Spread),
			Total:         optional(p.Total),
			ProjectedHome: p.ProjectedHome,
			ProjectedAway: p.ProjectedAway,
			Source:        p.Source,
			Missing:       strings.Join(p.MissingInputs, "|"),
		}
		if p.SU != nil {
			row.SUPick, row.SUConfidence = p.SU.Selection, p.SU.Confidence
		}
		if p.ATS != nil {
			row.ATSPick, row.ATSConfidence = p.ATS.Selection, p.ATS.Confidence
		}
		if p.OU != nil {
			row.OUPick, row.OUConfidence = p.OU.Selection, p.OU.Confidence
		}
		rows = append(rows, row)
	}
	return gocsv.Marshal(&rows, w)
}

// ExportPerformance writes an overall row per entry followed by one row per
// sport, sports in name order.
func ExportPerformance(w io.Writer, entries []*store.PerformanceEntry) error {
	var rows []*performanceRow
	for _, e := range entries {
		ts := e.Timestamp.UTC().Format(TimestampLayout)
		rows = append(rows, recordRow(ts, "all", e.Graded, e.SU, e.ATS, e.OU))

		sports := make([]string, 0, len(e.BySport))
		for sport := range e.BySport {
			sports = append(sports, sport)
		}
		sort.Strings(sports)
		for _, sport := range sports {
			m := e.BySport[sport]
			su, ats, ou := m[store.MarketSU], m[store.MarketATS], m[store.MarketOU]
			rows = append(rows, recordRow(ts, sport, su.Total, su, ats, ou))
		}
	}
	return gocsv.Marshal(&rows, w)
}

// ExportCSV writes both exports into the writer's directory.
func (w *Writer) ExportCSV(preds []*store.Prediction, entries []*store.PerformanceEntry) error {
	var buf bytes.Buffer
	if err := ExportPredictions(&buf, preds); err != nil {
		return fmt.Errorf("export predictions: %w", err)
	}
	if err := atomicWrite(filepath.Join(w.dir, PredictionsCSV), buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", PredictionsCSV, err)
	}

	buf.Reset()
	if err := ExportPerformance(&buf, entries); err != nil {
		return fmt.Errorf("export performance: %w", err)
	}
	if err := atomicWrite(filepath.Join(w.dir, PerformanceCSV), buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", PerformanceCSV, err)
	}
	w.logger.Infof("✓ exported %d predictions and %d performance entries", len(preds), len(entries))
	return nil
}

func recordRow(ts, sport string, graded int, su, ats, ou store.MarketRecord) *performanceRow {
	return &performanceRow{
		Timestamp:  ts,
		Sport:      sport,
		Graded:     graded,
		SUCorrect:  su.Correct,
		SUTotal:    su.Total,
		SUPct:      su.Pct,
		ATSCorrect: ats.Correct,
		ATSTotal:   ats.Total,
		ATSPct:     ats.Pct,
		OUCorrect:  ou.Correct,
		OUTotal:    ou.Total,
		OUPct:      ou.Pct,
	}
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
