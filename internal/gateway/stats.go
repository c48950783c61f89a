package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// StatsResult counts what the service holds. Counts are zero when Err is
// set.
type StatsResult struct {
	TotalItems int   `json:"total_items"`
	TotalUsers int   `json:"total_users"`
	Err        error `json:"-"`
}

// GetStats lists items and users and counts them.
func (g *Gateway) GetStats(ctx context.Context) StatsResult {
	if !g.configured {
		return StatsResult{Err: g.unconfigured()}
	}
	items, err := g.listIDs(ctx, "list_items", "/items/list/")
	if err != nil {
		g.logger.Warn("stats unavailable", map[string]interface{}{"error": err})
		return StatsResult{Err: err}
	}
	users, err := g.listIDs(ctx, "list_users", "/users/list/")
	if err != nil {
		g.logger.Warn("stats unavailable", map[string]interface{}{"error": err})
		return StatsResult{Err: err}
	}
	return StatsResult{TotalItems: items, TotalUsers: users}
}

func (g *Gateway) listIDs(ctx context.Context, op, endpoint string) (int, error) {
	body, _, err := g.call(ctx, op, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return 0, err
	}
	var ids []json.RawMessage
	if err := json.Unmarshal(body, &ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// QualityFields are the properties VerifyDataQuality inspects.
var QualityFields = []string{"title", "overview", "genres", "keywords", "director", "actors", "poster_path", "vote_average"}

// QualityResult reports, for a sample of stored items, how many carry a
// non-empty value per property.
type QualityResult struct {
	Sampled int             `json:"sampled"`
	Filled  map[string]int  `json:"filled"`
	Samples []QualitySample `json:"samples"`
	Err     error           `json:"-"`
}

// QualitySample is one sampled item.
type QualitySample struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Genres   []string `json:"genres"`
	Director string   `json:"director"`
	Missing  []string `json:"missing,omitempty"`
}

// VerifyDataQuality samples up to n stored items with their properties.
func (g *Gateway) VerifyDataQuality(ctx context.Context, n int) QualityResult {
	res := QualityResult{Filled: map[string]int{}, Samples: []QualitySample{}}
	if !g.configured {
		res.Err = g.unconfigured()
		return res
	}
	if n <= 0 {
		return res
	}

	q := url.Values{
		"count":            {strconv.Itoa(n)},
		"returnProperties": {"true"},
	}
	body, _, err := g.call(ctx, "list_items_sample", http.MethodGet, "/items/list/", q, nil)
	if err != nil {
		res.Err = err
		g.logger.Warn("data quality check unavailable", map[string]interface{}{"error": err})
		return res
	}

	var items []map[string]interface{}
	if err := json.Unmarshal(body, &items); err != nil {
		res.Err = err
		return res
	}

	for _, item := range items {
		id, _ := item["itemId"].(string)
		sample := QualitySample{
			ID:       id,
			Title:    stringValue(item, "title"),
			Genres:   setValue(item, "genres"),
			Director: stringValue(item, "director"),
		}
		for _, f := range QualityFields {
			if filled(item[f]) {
				res.Filled[f]++
			} else {
				sample.Missing = append(sample.Missing, f)
			}
		}
		res.Samples = append(res.Samples, sample)
	}
	res.Sampled = len(res.Samples)
	return res
}

func filled(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case float64:
		return t != 0
	case bool:
		return true
	}
	return false
}
