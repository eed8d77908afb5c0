package espn

import (
	"context"
	"sort"
	"time"
	_ "time/tzdata" // America/New_York in slim containers

	"github.com/fortuna/pythia/internal/league"
)

// SlateDays is the number of calendar days a slate covers, today included.
const SlateDays = 7

// easternTime is the calendar ESPN schedules are keyed by.
var easternTime = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// localDay truncates t to midnight of its America/New_York calendar day.
func localDay(t time.Time) time.Time {
	l := t.In(easternTime)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, easternTime)
}

// CalendarDates returns the whitelisted event dates within today..today+6.
// An empty result (no whitelist, or a failed fetch) tells the caller to
// query the whole window as one range.
func (i *Ingester) CalendarDates(ctx context.Context, lg league.League, now time.Time) []time.Time {
	wl, err := i.client.FetchWhitelist(ctx, lg)
	if err != nil {
		i.logger.Warnf("[%s] ⚠️  calendar whitelist unavailable: %v", lg.Key, err)
		return nil
	}
	return whitelistDates(wl, now)
}

func whitelistDates(wl map[string]interface{}, now time.Time) []time.Time {
	today := localDay(now)
	last := today.AddDate(0, 0, SlateDays-1)

	raw := extractArray(extractMap(wl, "eventDate"), "dates")
	if len(raw) == 0 {
		raw = extractArray(wl, "dates")
	}

	seen := make(map[string]bool)
	var out []time.Time
	for _, entry := range raw {
		s, _ := entry.(string)
		t, ok := parseESPNTime(s)
		if !ok {
			continue
		}
		d := localDay(t)
		if d.Before(today) || d.After(last) {
			continue
		}
		key := d.Format("20060102")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Before(out[b]) })
	return out
}
