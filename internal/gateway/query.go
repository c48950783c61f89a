package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker/v2"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/gateway/reql"
	"movie-recommender/internal/models"
)

const (
	ScenarioHomepage      = "homepage"
	ScenarioColdStart     = "cold_start"
	ScenarioSimilarMovies = "similar_movies"

	LogicHybrid       = "recombee:hybrid"
	LogicContentBased = "recombee:content-based"

	// ColdStartUserID stands in for a visitor with no history.
	ColdStartUserID = "cold_start_temp"
)

// RecommendationResult carries either movies or the reason there are none.
// An empty Movies with a nil Err means the service had nothing to offer.
type RecommendationResult struct {
	RecommID string
	Movies   []models.MovieSummary
	Err      error
}

func (r RecommendationResult) OK() bool { return r.Err == nil }

// Reason is a short machine-readable failure cause, "" on success.
func (r RecommendationResult) Reason() string {
	return Reason(r.Err)
}

// Reason maps a gateway error to the label used in API payloads and
// fallback metrics.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeServiceUnconfigured:
		return "unconfigured"
	case apperrors.ErrCodeServiceAuthFailed:
		return "auth_failed"
	case apperrors.ErrCodeCircuitOpen:
		return "circuit_open"
	case apperrors.ErrCodeServiceTimeout:
		return "timeout"
	case apperrors.ErrCodeServiceRejected:
		return "rejected"
	case apperrors.ErrCodeServiceRequestFailed:
		return "request_failed"
	default:
		return "error"
	}
}

type logic struct {
	Name string `json:"name"`
}

type recommendRequest struct {
	Count            int      `json:"count"`
	TargetUserID     string   `json:"targetUserId,omitempty"`
	Scenario         string   `json:"scenario,omitempty"`
	CascadeCreate    bool     `json:"cascadeCreate"`
	ReturnProperties bool     `json:"returnProperties"`
	Filter           string   `json:"filter,omitempty"`
	Booster          string   `json:"booster,omitempty"`
	Logic            *logic   `json:"logic,omitempty"`
	Diversity        *float64 `json:"diversity,omitempty"`
}

type recommendResponse struct {
	RecommID string `json:"recommId"`
	Recomms  []struct {
		ID     string                 `json:"id"`
		Values map[string]interface{} `json:"values"`
	} `json:"recomms"`
}

// RecommendForUser asks for personalised recommendations, optionally
// restricted to genres, with hidden gems boosted.
func (g *Gateway) RecommendForUser(ctx context.Context, userID string, count int, genres []string, diversity float64) RecommendationResult {
	d := diversity
	req := recommendRequest{
		Count:            count,
		Scenario:         ScenarioHomepage,
		CascadeCreate:    true,
		ReturnProperties: true,
		Filter:           reql.Render(reql.GenreFilter(genres)),
		Booster:          reql.HiddenGemBooster().Render(),
		Logic:            &logic{Name: LogicHybrid},
		Diversity:        &d,
	}
	return g.recommend(ctx, "recommend_items_to_user", "/recomms/users/"+url.PathEscape(userID)+"/items/", req, count)
}

// RecommendForNewUser serves a visitor without history from content
// attributes alone, boosting popular titles.
func (g *Gateway) RecommendForNewUser(ctx context.Context, genres []string, count int) RecommendationResult {
	req := recommendRequest{
		Count:            count,
		Scenario:         ScenarioColdStart,
		CascadeCreate:    true,
		ReturnProperties: true,
		Filter:           reql.Render(reql.GenreFilter(genres)),
		Booster:          reql.PopularityBooster().Render(),
		Logic:            &logic{Name: LogicContentBased},
	}
	return g.recommend(ctx, "recommend_cold_start", "/recomms/users/"+ColdStartUserID+"/items/", req, count)
}

// RecommendSimilar returns items similar to movieID. targetUserID may be
// empty.
func (g *Gateway) RecommendSimilar(ctx context.Context, movieID string, count int, targetUserID string) RecommendationResult {
	req := recommendRequest{
		Count:            count,
		TargetUserID:     targetUserID,
		Scenario:         ScenarioSimilarMovies,
		CascadeCreate:    true,
		ReturnProperties: true,
		Logic:            &logic{Name: LogicHybrid},
	}
	return g.recommend(ctx, "recommend_items_to_item", "/recomms/items/"+url.PathEscape(movieID)+"/items/", req, count)
}

func (g *Gateway) recommend(ctx context.Context, op, endpoint string, req recommendRequest, count int) RecommendationResult {
	empty := []models.MovieSummary{}
	if !g.configured {
		return RecommendationResult{Movies: empty, Err: g.unconfigured()}
	}
	if count <= 0 {
		return RecommendationResult{Movies: empty}
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		b, _, err := g.call(ctx, op, http.MethodPost, endpoint, nil, req)
		return b, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = apperrors.NewCircuitOpenError(g.breaker.Name(), err)
		}
		g.logger.Warn("recommendation query failed", map[string]interface{}{
			"operation": op,
			"reason":    Reason(err),
			"error":     err,
		})
		return RecommendationResult{Movies: empty, Err: err}
	}

	var resp recommendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = apperrors.NewServiceRequestFailedError(op, fmt.Errorf("decode response: %w", err))
		g.logger.Warn("recommendation response unreadable", map[string]interface{}{"operation": op, "error": err})
		return RecommendationResult{Movies: empty, Err: err}
	}

	movies := make([]models.MovieSummary, 0, len(resp.Recomms))
	for _, rec := range resp.Recomms {
		if len(movies) == count {
			break
		}
		movies = append(movies, SummaryFromValues(rec.ID, rec.Values))
	}
	return RecommendationResult{RecommID: resp.RecommID, Movies: movies}
}

// SummaryFromValues converts returned item properties. A missing title
// reads as "Unknown"; other missing fields take zero values.
func SummaryFromValues(id string, values map[string]interface{}) models.MovieSummary {
	s := models.MovieSummary{
		ID:          id,
		Title:       stringValue(values, "title"),
		Overview:    stringValue(values, "overview"),
		Genres:      setValue(values, "genres"),
		Director:    stringValue(values, "director"),
		Actors:      setValue(values, "actors"),
		VoteAverage: numberValue(values, "vote_average"),
		VoteCount:   int64(numberValue(values, "vote_count")),
		Runtime:     int64(numberValue(values, "runtime")),
		PosterPath:  stringValue(values, "poster_path"),
		ReleaseDate: stringValue(values, "release_date"),
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = "Unknown"
	}
	return s
}

func stringValue(values map[string]interface{}, key string) string {
	if s, ok := values[key].(string); ok {
		return s
	}
	return ""
}

func numberValue(values map[string]interface{}, key string) float64 {
	switch v := values[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func setValue(values map[string]interface{}, key string) []string {
	out := []string{}
	list, ok := values[key].([]interface{})
	if !ok {
		return out
	}
	for _, el := range list {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
