package injuries

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

const oddstraderRows = "div.injuries-table tbody tr"

var rankedTeam = regexp.MustCompile(`^#\d+\s+`)

// Oddstrader scrapes the JavaScript-rendered Oddstrader injuries pages.
type Oddstrader struct {
	renderer Renderer
}

func NewOddstrader(r Renderer) *Oddstrader { return &Oddstrader{renderer: r} }

func (o *Oddstrader) Name() string { return "oddstrader" }

func (o *Oddstrader) Fetch(ctx context.Context, lg league.League) ([]store.InjuryReport, error) {
	if lg.OddstraderURL == "" {
		return nil, nil
	}
	html, err := o.renderer.Render(ctx, lg.OddstraderURL, "div.injuries-table")
	if err != nil {
		return nil, fmt.Errorf("oddstrader %s: %w", lg.Key, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse oddstrader page: %w", err)
	}
	return ParseOddstrader(doc), nil
}

// ParseOddstrader reads rows of player, position, team, status, notes.
// Player cells formatted "Name (POS)" supply the position when the column
// is empty.
func ParseOddstrader(doc *goquery.Document) []store.InjuryReport {
	var out []store.InjuryReport
	doc.Find(oddstraderRows).Each(func(_ int, tr *goquery.Selection) {
		var cols []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cols = append(cols, cleanText(td.Text()))
		})
		if len(cols) < 4 {
			return
		}

		player, position := cols[0], cols[1]
		if open := strings.Index(player, "("); open > 0 && strings.HasSuffix(player, ")") {
			if position == "" {
				position = player[open+1 : len(player)-1]
			}
			player = strings.TrimSpace(player[:open])
		}
		if player == "" {
			return
		}

		rec := store.InjuryReport{
			Player:   player,
			Position: position,
			Team:     rankedTeam.ReplaceAllString(cols[2], ""),
			Status:   cols[3],
			Source:   "oddstrader",
		}
		if len(cols) > 4 {
			rec.Detail = cols[4]
		}
		out = append(out, rec)
	})
	return out
}
