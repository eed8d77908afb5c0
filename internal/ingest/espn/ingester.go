package espn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

// eventConcurrency bounds parallel event resolution within one league.
const eventConcurrency = 6

// ErrNoCompetition marks an event without a usable competition block.
var ErrNoCompetition = errors.New("espn: event has no competition")

// Ingester walks the ESPN core API and builds store.Game records.
type Ingester struct {
	client   *Client
	resolver *Resolver
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewIngester creates a new ESPN schedule ingester.
func NewIngester(client *Client, resolver *Resolver, logger *zap.Logger) *Ingester {
	return &Ingester{
		client:   client,
		resolver: resolver,
		logger:   logging.OrNop(logger).Named("espn").Sugar(),
		now:      time.Now,
	}
}

// Client exposes the underlying API client.
func (i *Ingester) Client() *Client { return i.client }

// FetchSlate fetches every configured league's games for the next SlateDays
// days. A league that fails is recorded in Slate.Errors; the others proceed.
func (i *Ingester) FetchSlate(ctx context.Context, leagues []league.League, now time.Time) *Slate {
	slate := &Slate{
		ByLeague: make(map[string][]*store.Game),
		Errors:   make(map[string]error),
	}

	for _, lg := range leagues {
		games, err := i.FetchLeague(ctx, lg, now)
		if err != nil {
			i.logger.Errorf("[%s] ❌ schedule fetch failed: %v", lg.Key, err)
			slate.Errors[lg.Key] = err
		}
		slate.ByLeague[lg.Key] = games
		slate.Games = append(slate.Games, games...)
		i.logger.Infof("[%s] ✓ %d games", lg.Key, len(games))
	}

	sortGames(slate.Games)
	return slate
}

// FetchLeague fetches one league's upcoming games, sorted by start time.
func (i *Ingester) FetchLeague(ctx context.Context, lg league.League, now time.Time) ([]*store.Game, error) {
	refs, err := i.upcomingEventRefs(ctx, lg, now)
	if err != nil && len(refs) == 0 {
		return nil, err
	}

	var (
		mu    sync.Mutex
		games []*store.Game
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(eventConcurrency)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			event, err := i.resolver.Fetch(gctx, ref)
			if err != nil {
				i.logger.Warnf("[%s] ⚠️  event %s: %v", lg.Key, ref, err)
				return nil
			}
			game, err := i.ParseEvent(gctx, lg, event)
			if err != nil {
				i.logger.Warnf("[%s] ⚠️  skipping event %s: %v", lg.Key, extractString(event, "id"), err)
				return nil
			}
			mu.Lock()
			games = append(games, game)
			mu.Unlock()
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return nil, werr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sortGames(games)
	return games, err
}

// upcomingEventRefs collects deduplicated event $refs for the slate window.
func (i *Ingester) upcomingEventRefs(ctx context.Context, lg league.League, now time.Time) ([]string, error) {
	dates := i.CalendarDates(ctx, lg, now)

	seen := make(map[string]bool)
	var (
		refs    []string
		lastErr error
	)
	add := func(start, end time.Time) {
		items, err := i.EventRefs(ctx, lg, start, end)
		if err != nil {
			lastErr = err
			i.logger.Warnf("[%s] ⚠️  event index %s: %v", lg.Key, start.Format("2006-01-02"), err)
			return
		}
		for _, ref := range items {
			if id := eventIDFromRef(ref); !seen[id] {
				seen[id] = true
				refs = append(refs, ref)
			}
		}
	}

	if len(dates) > 0 {
		for _, d := range dates {
			add(d, d)
		}
	} else {
		today := localDay(now)
		add(today, today.AddDate(0, 0, SlateDays-1))
	}
	return refs, lastErr
}

// EventRefs lists the event $ref URLs for a date or inclusive date range.
func (i *Ingester) EventRefs(ctx context.Context, lg league.League, start, end time.Time) ([]string, error) {
	idx, err := i.client.FetchEventIndex(ctx, lg, start, end)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, item := range extractArray(idx, "items") {
		if m, ok := item.(map[string]interface{}); ok {
			if ref := extractString(m, "$ref"); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

// ParseEvent builds a game from a core API event, resolving the team, score,
// status, odds, venue and officials links. Broken optional links leave the
// field empty; only missing teams reject the event.
func (i *Ingester) ParseEvent(ctx context.Context, lg league.League, event map[string]interface{}) (*store.Game, error) {
	game := &store.Game{
		ID:        extractString(event, "id"),
		Sport:     lg.Key,
		Name:      extractString(event, "name"),
		ShortName: extractString(event, "shortName"),
		Status:    store.StatusScheduled,
		UpdatedAt: i.now().UTC(),
	}
	if t, ok := parseESPNTime(extractString(event, "date")); ok {
		game.StartTime = t
	} else {
		return nil, fmt.Errorf("event %s: unparseable date %q", game.ID, extractString(event, "date"))
	}

	competitions := extractArray(event, "competitions")
	if len(competitions) == 0 {
		return nil, fmt.Errorf("event %s: %w", game.ID, ErrNoCompetition)
	}
	comp := i.resolver.Resolve(ctx, competitions[0])
	if comp == nil {
		return nil, fmt.Errorf("event %s: %w", game.ID, ErrNoCompetition)
	}

	var haveHome, haveAway bool
	for _, raw := range extractArray(comp, "competitors") {
		competitor, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		teamObj := i.resolver.Resolve(ctx, competitor["team"])
		if teamObj == nil {
			continue
		}
		team := teamFromObject(teamObj)
		if team.ID == "" {
			team.ID = extractString(competitor, "id")
		}

		var score *int
		if sv, ok := competitor["score"]; ok {
			if m, isMap := sv.(map[string]interface{}); isMap && extractString(m, "$ref") != "" {
				sv = i.resolver.Resolve(ctx, m)
			}
			score = scoreValue(sv)
		}

		switch extractString(competitor, "homeAway") {
		case "home":
			game.Home, game.HomeScore, haveHome = team, score, true
		case "away":
			game.Away, game.AwayScore, haveAway = team, score, true
		}
	}
	if !haveHome || !haveAway {
		return nil, fmt.Errorf("event %s: missing home or away team", game.ID)
	}

	if status := i.resolver.Resolve(ctx, firstPresent(comp, event, "status")); status != nil {
		game.Status = parseGameStatus(status)
	}
	if game.Status == store.StatusScheduled {
		// pre-game scores from the core API are zero placeholders
		game.HomeScore, game.AwayScore = nil, nil
	}

	if v := i.resolver.Resolve(ctx, comp["venue"]); v != nil {
		game.Venue = venueFromObject(v)
	}

	game.Odds = i.resolveOdds(ctx, comp["odds"])
	if game.Odds != nil {
		fetched := game.UpdatedAt
		game.Odds.FetchedAt = &fetched
	}
	game.Officials = i.resolveOfficials(ctx, comp["officials"])

	if game.Name == "" {
		game.Name = game.Away.Name + " at " + game.Home.Name
	}
	return game, nil
}

// resolveOdds picks the priority-1 provider, else the first usable item.
func (i *Ingester) resolveOdds(ctx context.Context, v interface{}) *store.Odds {
	index := i.resolver.Resolve(ctx, v)
	var items []interface{}
	switch {
	case index != nil:
		items = extractArray(index, "items")
	default:
		if arr, ok := v.([]interface{}); ok {
			items = arr
		}
	}

	var best *store.Odds
	for _, raw := range items {
		item := i.resolver.Resolve(ctx, raw)
		odds := oddsFromObject(item)
		if odds == nil {
			continue
		}
		if extractInt(extractMap(item, "provider"), "priority") == 1 {
			return odds
		}
		if best == nil {
			best = odds
		}
	}
	return best
}

func (i *Ingester) resolveOfficials(ctx context.Context, v interface{}) []store.Official {
	index := i.resolver.Resolve(ctx, v)
	var items []interface{}
	if index != nil {
		items = extractArray(index, "items")
		if len(items) == 0 {
			items = extractArray(index, "officials")
		}
	} else if arr, ok := v.([]interface{}); ok {
		items = arr
	}

	var out []store.Official
	for _, raw := range items {
		obj := i.resolver.Resolve(ctx, raw)
		if obj == nil {
			continue
		}
		if o, ok := officialFromObject(obj); ok {
			out = append(out, o)
		}
	}
	return out
}

func firstPresent(a, b map[string]interface{}, key string) interface{} {
	if v, ok := a[key]; ok {
		return v
	}
	return b[key]
}

// eventIDFromRef extracts the id segment of ".../events/401671789?lang=en".
func eventIDFromRef(ref string) string {
	id := ref
	if q := strings.IndexByte(id, '?'); q >= 0 {
		id = id[:q]
	}
	id = strings.TrimRight(id, "/")
	if slash := strings.LastIndexByte(id, '/'); slash >= 0 {
		return id[slash+1:]
	}
	return id
}

func sortGames(games []*store.Game) {
	sort.SliceStable(games, func(a, b int) bool {
		if !games[a].StartTime.Equal(games[b].StartTime) {
			return games[a].StartTime.Before(games[b].StartTime)
		}
		return games[a].ID < games[b].ID
	})
}
