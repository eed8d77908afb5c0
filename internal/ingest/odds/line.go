package odds

import (
	"math"
	"strconv"
	"time"
)

// PreferredBookmakers are tried in order before falling back to the freshest book.
var PreferredBookmakers = []string{
	"draftkings",
	"fanduel",
	"betmgm",
	"pointsbetus",
	"betonlineag",
	"bovada",
}

// ChooseBookmaker picks the first preferred book present, else the one with
// the latest last_update, else the first listed.
func ChooseBookmaker(books []Bookmaker) *Bookmaker {
	if len(books) == 0 {
		return nil
	}
	for _, pref := range PreferredBookmakers {
		for i := range books {
			if books[i].Key == pref {
				return &books[i]
			}
		}
	}
	best := 0
	for i := range books {
		if books[i].LastUpdate > books[best].LastUpdate {
			best = i
		}
	}
	return &books[best]
}

func (b *Bookmaker) market(key string) *Market {
	for i := range b.Markets {
		if b.Markets[i].Key == key {
			return &b.Markets[i]
		}
	}
	return nil
}

// BuildLine converts an event into a Line. The favorite is the spreads
// outcome with the lowest point, falling back to the lowest h2h price.
// It returns false when the event has neither a side nor a total.
func BuildLine(ev Event, fetchedAt time.Time) (Line, bool) {
	line := Line{
		EventID:      ev.ID,
		SportKey:     ev.SportKey,
		HomeTeam:     ev.HomeTeam,
		AwayTeam:     ev.AwayTeam,
		CommenceTime: ev.CommenceTime,
		FetchedAt:    fetchedAt,
	}
	if ev.HomeTeam == "" || ev.AwayTeam == "" || ev.CommenceTime.IsZero() {
		return line, false
	}

	book := ChooseBookmaker(ev.Bookmakers)
	if book == nil {
		return line, false
	}
	line.Book = book.Key

	if fav, dog, ok := spreadSides(book.market("spreads")); ok {
		line.FavTeam, line.DogTeam = fav.Name, dog.Name
		line.FavSpread = floatPtr(*fav.Point)
		line.DogSpread = floatPtr(*dog.Point)
	}

	prices := h2hPrices(book.market("h2h"))
	if line.FavTeam == "" || line.DogTeam == "" {
		line.FavTeam, line.DogTeam = favoriteByPrice(prices)
	}
	line.FavPrice = prices[line.FavTeam]
	line.DogPrice = prices[line.DogTeam]
	line.HomePrice = prices[ev.HomeTeam]
	line.AwayPrice = prices[ev.AwayTeam]

	if totals := book.market("totals"); totals != nil {
		for _, o := range totals.Outcomes {
			if o.Point != nil {
				line.Total = floatPtr(*o.Point)
				break
			}
		}
	}

	if line.FavTeam == "" && line.DogTeam == "" && line.Total == nil {
		return line, false
	}

	line.Favorite = withSpread(line.FavTeam, line.FavSpread)
	line.Underdog = withSpread(line.DogTeam, line.DogSpread)
	return line, true
}

func spreadSides(m *Market) (fav, dog Outcome, ok bool) {
	if m == nil {
		return fav, dog, false
	}
	var valid []Outcome
	for _, o := range m.Outcomes {
		if o.Point != nil && o.Name != "" {
			valid = append(valid, o)
		}
	}
	if len(valid) < 2 {
		return fav, dog, false
	}
	fav, dog = valid[0], valid[0]
	for _, o := range valid[1:] {
		if *o.Point < *fav.Point {
			fav = o
		}
		if *o.Point > *dog.Point {
			dog = o
		}
	}
	if fav.Name == dog.Name {
		// both sides quoted at the same number (pick'em): keep listing order
		fav, dog = valid[0], valid[1]
	}
	return fav, dog, true
}

func h2hPrices(m *Market) map[string]*float64 {
	prices := make(map[string]*float64)
	if m == nil {
		return prices
	}
	for _, o := range m.Outcomes {
		if o.Name != "" && o.Price != nil {
			prices[o.Name] = floatPtr(*o.Price)
		}
	}
	return prices
}

// favoriteByPrice picks the most negative moneyline. Ties resolve by name
// so the result does not depend on map order.
func favoriteByPrice(prices map[string]*float64) (string, string) {
	if len(prices) < 2 {
		return "", ""
	}
	fav := ""
	for name, p := range prices {
		if fav == "" || *p < *prices[fav] || (*p == *prices[fav] && name < fav) {
			fav = name
		}
	}
	dog := ""
	for name := range prices {
		if name != fav && (dog == "" || name < dog) {
			dog = name
		}
	}
	return fav, dog
}

// FormatSpread renders a spread as "PK", "+3" or "-6.5".
func FormatSpread(v float64) string {
	if math.Abs(v) < 1e-6 {
		return "PK"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

func withSpread(team string, spread *float64) string {
	if team == "" || spread == nil {
		return team
	}
	return team + " " + FormatSpread(*spread)
}

func floatPtr(v float64) *float64 { return &v }
