package injuries

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

const ESPNWebBaseURL = "https://www.espn.com"

// ESPNWeb scrapes the public espn.com injuries pages.
type ESPNWeb struct {
	baseURL string
	http    *fetch.Client
}

func NewESPNWeb(baseURL string, httpClient *fetch.Client) *ESPNWeb {
	if baseURL == "" {
		baseURL = ESPNWebBaseURL
	}
	if httpClient == nil {
		httpClient = fetch.New("espn_web")
	}
	return &ESPNWeb{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (w *ESPNWeb) Name() string { return "espn_web" }

func (w *ESPNWeb) Fetch(ctx context.Context, lg league.League) ([]store.InjuryReport, error) {
	html, err := w.http.GetHTML(ctx, fmt.Sprintf("%s/%s/injuries", w.baseURL, lg.WebSlug))
	if err != nil {
		return nil, fmt.Errorf("espn web injuries %s: %w", lg.Key, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse espn injuries page: %w", err)
	}
	return ParseESPNWeb(doc), nil
}

// ParseESPNWeb walks team headers and tables in document order. Columns are
// mapped by header label; tables without headers are read positionally as
// player, position, status, date, comment.
func ParseESPNWeb(doc *goquery.Document) []store.InjuryReport {
	var (
		out  []store.InjuryReport
		team string
	)

	doc.Find("h2, h3, .Table__Title, table").Each(func(_ int, node *goquery.Selection) {
		if !node.Is("table") {
			txt := cleanText(node.Text())
			if txt != "" && len(txt) < 50 && !strings.Contains(strings.ToLower(txt), "injuries") {
				team = txt
			}
			return
		}

		var headers []string
		node.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.ToLower(cleanText(th.Text())))
		})

		node.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cols []string
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				cols = append(cols, cleanText(td.Text()))
			})
			if len(cols) < 2 {
				return
			}
			rec := rowRecord(headers, cols)
			if rec.Player == "" {
				return
			}
			rec.Team = team
			if rec.Team == "" {
				rec.Team = "Unknown"
			}
			rec.Source = "espn_web"
			out = append(out, rec)
		})
	})
	return out
}

func rowRecord(headers, cols []string) store.InjuryReport {
	var rec store.InjuryReport
	if len(headers) == 0 {
		fields := []*string{&rec.Player, &rec.Position, &rec.Status, &rec.Updated, &rec.Detail}
		for i, f := range fields {
			if i < len(cols) {
				*f = cols[i]
			}
		}
		return rec
	}
	for i, h := range headers {
		if i >= len(cols) {
			break
		}
		v := cols[i]
		switch {
		case strings.Contains(h, "player") || h == "name":
			rec.Player = v
		case h == "pos" || h == "position":
			rec.Position = v
		case strings.Contains(h, "status"):
			rec.Status = v
		case strings.Contains(h, "date") || strings.Contains(h, "updated"):
			rec.Updated = v
		case strings.Contains(h, "injury") || strings.Contains(h, "comment") || strings.Contains(h, "description"):
			rec.Detail = v
		}
	}
	return rec
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
