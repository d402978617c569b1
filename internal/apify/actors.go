package apify

import (
	"errors"
	"fmt"
	"sort"

	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/normalize"
)

// ErrUnknownActor is returned for an actor name missing from the table.
var ErrUnknownActor = errors.New("unknown actor")

// Query is the search an actor run is started with.
type Query struct {
	Keywords string   `json:"keywords"`
	Location string   `json:"location"`
	Boards   []string `json:"boards,omitempty"`
	MaxItems int      `json:"maxItems" validate:"omitempty,min=1,max=5000"`
}

const defaultMaxItems = 100

// Actor binds an Apify actor to the normalizer for its dataset items.
type Actor struct {
	Name    string
	Source  model.Source
	ActorID string
	// CostPer1000 is the published price per 1000 results, in USD. It
	// estimates cost when the run does not report its usage.
	CostPer1000 float64
	Normalize   normalize.Func
	Input       func(q Query) map[string]any
}

// EstimateCost prices n results at the actor's published rate.
func (a Actor) EstimateCost(n int) float64 {
	return float64(n) / 1000 * a.CostPer1000
}

var actors = map[string]Actor{
	"linkedin": {
		Name:        "linkedin",
		Source:      model.SourceLinkedIn,
		ActorID:     "bebity/linkedin-jobs-scraper",
		CostPer1000: 5,
		Normalize:   normalize.LinkedIn,
		Input: func(q Query) map[string]any {
			return map[string]any{
				"title":       q.Keywords,
				"location":    q.Location,
				"rows":        maxItems(q),
				"publishedAt": "r86400",
			}
		},
	},
	"greenhouse": {
		Name:        "greenhouse",
		Source:      model.SourceGreenhouse,
		ActorID:     "jupri/greenhouse-jobs",
		CostPer1000: 1,
		Normalize:   normalize.Greenhouse,
		Input: func(q Query) map[string]any {
			boards := q.Boards
			if boards == nil {
				boards = []string{}
			}
			return map[string]any{
				"boards":   boards,
				"keyword":  q.Keywords,
				"maxItems": maxItems(q),
			}
		},
	},
	"indeed": {
		Name:        "indeed",
		Source:      model.SourceIndeed,
		ActorID:     "misceres/indeed-scraper",
		CostPer1000: 3,
		Normalize:   normalize.Indeed,
		Input: func(q Query) map[string]any {
			return map[string]any{
				"position":            q.Keywords,
				"location":            q.Location,
				"maxItems":            maxItems(q),
				"parseCompanyDetails": false,
				"saveOnlyUniqueItems": true,
			}
		},
	},
}

func maxItems(q Query) int {
	if q.MaxItems <= 0 {
		return defaultMaxItems
	}
	return q.MaxItems
}

// LookupActor returns the actor registered under name.
func LookupActor(name string) (Actor, error) {
	a, ok := actors[name]
	if !ok {
		return Actor{}, fmt.Errorf("%w: %q", ErrUnknownActor, name)
	}
	return a, nil
}

// ActorNames lists the known actors alphabetically.
func ActorNames() []string {
	names := make([]string, 0, len(actors))
	for n := range actors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
