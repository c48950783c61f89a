package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/models"
)

const (
	testDB    = "test-db"
	testToken = "secret-token"
)

// recorded is one request seen by the fake service.
type recorded struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

type fakeService struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r recorded)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sign := q.Get("hmac_sign")
	unsigned := strings.TrimSuffix(r.URL.RawQuery, "&hmac_sign="+sign)
	if Sign(testToken, r.URL.EscapedPath()+"?"+unsigned) != sign {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad signature"}`))
		return
	}

	rec := recorded{Method: r.Method, Path: strings.TrimPrefix(r.URL.Path, "/"+testDB), Query: unsigned}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		require.NoError(f.t, json.Unmarshal(raw, &rec.Body))
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	f.handler(w, rec)
}

func (f *fakeService) seen() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recorded, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestGateway(t *testing.T, handler func(w http.ResponseWriter, r recorded)) (*Gateway, *fakeService) {
	t.Helper()
	fake := &fakeService{t: t, handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.RecommenderConfig{
		DatabaseID:   testDB,
		PrivateToken: testToken,
		BaseURL:      srv.URL,
		Timeout:      5000,
		Breaker:      config.BreakerConfig{FailureThreshold: 2, Timeout: 60000},
	}
	g := New(cfg, logger.NewTestLogger(t), WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	return g, fake
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://rapi-eu-west.recombee.com", BaseURL("eu-west", ""))
	assert.Equal(t, "https://rapi-us-west.recombee.com", BaseURL("US-West", ""))
	assert.Equal(t, "https://rapi-ap-se.recombee.com", BaseURL("ap-se", ""))
	assert.Equal(t, "https://rapi.recombee.com", BaseURL("mars", ""))
	assert.Equal(t, "http://localhost:9999", BaseURL("eu-west", "http://localhost:9999/"))
}

func TestSigning(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusOK, []string{"1", "2"})
	})

	stats := g.GetStats(context.Background())
	require.NoError(t, stats.Err)
	assert.Equal(t, 2, stats.TotalItems)

	reqs := fake.seen()
	require.Len(t, reqs, 2)
	assert.Equal(t, "hmac_timestamp=1700000000", reqs[0].Query)
}

func TestUnconfiguredNeverCallsService(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	g := New(config.RecommenderConfig{
		DatabaseID:   config.PlaceholderDatabaseID,
		PrivateToken: config.PlaceholderPrivateToken,
		BaseURL:      srv.URL,
	}, logger.NewNoOpLogger())
	ctx := context.Background()

	assert.False(t, g.Configured())
	assert.True(t, apperrors.IsFatal(g.DeclareItemSchema(ctx)))
	_, err := g.UpsertItems(ctx, [][]models.ItemPayload{{{ItemID: "1"}}})
	assert.Equal(t, apperrors.ErrCodeServiceUnconfigured, apperrors.CodeOf(err))
	res := g.RecommendForUser(ctx, "u1", 5, nil, 0.3)
	assert.Equal(t, "unconfigured", res.Reason())
	assert.NotNil(t, res.Movies)
	assert.Error(t, g.GetStats(ctx).Err)
	assert.Error(t, g.RecordRating(ctx, "u", "m", 4, nil))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestDeclareItemSchema(t *testing.T) {
	t.Run("existing properties accepted", func(t *testing.T) {
		g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
			switch {
			case strings.HasSuffix(r.Path, "/title"):
				writeJSON(w, http.StatusConflict, map[string]string{"error": "Property title already exists"})
			case strings.HasSuffix(r.Path, "/genres"):
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Property already exists in the database"})
			default:
				writeJSON(w, http.StatusCreated, "ok")
			}
		})

		require.NoError(t, g.DeclareItemSchema(context.Background()))
		reqs := fake.seen()
		require.Len(t, reqs, len(ItemProperties))
		assert.Equal(t, http.MethodPut, reqs[0].Method)
		assert.Equal(t, "/items/properties/title", reqs[0].Path)
		assert.Contains(t, reqs[2].Query, "type=set")
	})

	t.Run("other failures are returned", func(t *testing.T) {
		g, _ := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid type"})
		})
		err := g.DeclareItemSchema(context.Background())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeSchemaSetupFailed, apperrors.CodeOf(err))
		assert.True(t, apperrors.IsFatal(err))
	})

	t.Run("user schema", func(t *testing.T) {
		g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
			writeJSON(w, http.StatusCreated, "ok")
		})
		require.NoError(t, g.DeclareUserSchema(context.Background()))
		reqs := fake.seen()
		require.Len(t, reqs, 3)
		assert.Equal(t, "/users/properties/registration_date", reqs[2].Path)
		assert.Contains(t, reqs[2].Query, "type=timestamp")
	})
}

func items(ids ...string) []models.ItemPayload {
	out := make([]models.ItemPayload, len(ids))
	for i, id := range ids {
		out[i] = models.ItemPayload{ItemID: id, Values: models.ItemValues{Title: "t" + id, Genres: []string{}, Keywords: []string{}, Actors: []string{}}}
	}
	return out
}

func TestUpsertItems_PartialFailure(t *testing.T) {
	var batchNo int32
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		n := atomic.AddInt32(&batchNo, 1)
		reqs := r.Body["requests"].([]interface{})
		if n == 2 {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
			return
		}
		results := make([]map[string]interface{}, len(reqs))
		for i, raw := range reqs {
			req := raw.(map[string]interface{})
			params := req["params"].(map[string]interface{})
			code := 200
			if runtime, _ := params["runtime"].(float64); runtime < 0 {
				code = 400
			}
			results[i] = map[string]interface{}{"code": code, "json": "ok"}
		}
		writeJSON(w, http.StatusOK, results)
	})

	first := items("1", "2", "3", "4", "5")
	first[2].Values.Runtime = -10

	rep, err := g.UpsertItems(context.Background(), [][]models.ItemPayload{first, items("6", "7"), items("8")})
	require.NoError(t, err)
	assert.Equal(t, WriteReport{
		Kind:           KindItems,
		Batches:        3,
		BatchesFailed:  1,
		Items:          8,
		ItemsSucceeded: 5,
		ItemsFailed:    3,
	}, rep)
	assert.False(t, rep.Complete())

	reqs := fake.seen()
	require.Len(t, reqs, 3)
	assert.Equal(t, "/batch/", reqs[0].Path)
	entry := reqs[0].Body["requests"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/items/1", entry["path"])
	params := entry["params"].(map[string]interface{})
	assert.Equal(t, true, params["!cascadeCreate"])
	assert.Equal(t, "t1", params["title"])
	assert.Equal(t, []interface{}{}, params["genres"])
}

func TestUpsertItems_AuthFailureAborts(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	})

	rep, err := g.UpsertItems(context.Background(), [][]models.ItemPayload{items("1"), items("2")})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeServiceAuthFailed, apperrors.CodeOf(err))
	assert.Len(t, fake.seen(), 1)
	assert.Equal(t, 1, rep.Batches)
}

func TestUpsertItems_CanceledContext(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{{"code": 200}})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.UpsertItems(ctx, [][]models.ItemPayload{items("1")})
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Empty(t, fake.seen())
}

func TestUpsertInteractions(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		reqs := r.Body["requests"].([]interface{})
		results := make([]map[string]interface{}, len(reqs))
		for i := range reqs {
			results[i] = map[string]interface{}{"code": 200, "json": "ok"}
		}
		writeJSON(w, http.StatusOK, results)
	})

	ts := int64(0)
	batch := []models.InteractionPayload{
		{UserID: "1", ItemID: "31", Rating: -0.25, Timestamp: &ts},
		{UserID: "1", ItemID: "32", Rating: 1},
	}
	rep, err := g.UpsertInteractions(context.Background(), [][]models.InteractionPayload{batch})
	require.NoError(t, err)
	assert.True(t, rep.Complete())
	assert.Equal(t, 2, rep.ItemsSucceeded)

	entries := fake.seen()[0].Body["requests"].([]interface{})
	first := entries[0].(map[string]interface{})["params"].(map[string]interface{})
	assert.Equal(t, "/ratings/", entries[0].(map[string]interface{})["path"])
	assert.Equal(t, 0.0, first["timestamp"])
	assert.Equal(t, true, first["cascadeCreate"])
	second := entries[1].(map[string]interface{})["params"].(map[string]interface{})
	_, hasTS := second["timestamp"]
	assert.False(t, hasTS)
}

func TestSingleWrites(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusOK, "ok")
	})
	ctx := context.Background()

	require.NoError(t, g.RecordRating(ctx, "u1", "862", 4, nil))
	require.NoError(t, g.RecordView(ctx, "u1", "862", nil))
	require.NoError(t, g.CreateUser(ctx, "u2", models.UserValues{PreferredGenres: []string{"Drama"}}))
	require.NoError(t, g.ResetDatabase(ctx))

	reqs := fake.seen()
	require.Len(t, reqs, 4)
	assert.Equal(t, 0.5, reqs[0].Body["rating"])
	assert.Equal(t, "/detailviews/", reqs[1].Path)
	assert.Equal(t, "/users/u2", reqs[2].Path)
	assert.Equal(t, []interface{}{"Drama"}, reqs[2].Body["preferred_genres"])
	assert.Equal(t, http.MethodDelete, reqs[3].Method)
	assert.Equal(t, "/", reqs[3].Path)
}

func TestRecordRating_RejectedIsReturned(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "missing"})
	})
	err := g.RecordRating(context.Background(), "u1", "862", 4, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeServiceRejected, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsFatal(err))
}

func recommResponse(ids ...string) map[string]interface{} {
	recomms := make([]map[string]interface{}, len(ids))
	for i, id := range ids {
		values := map[string]interface{}{
			"title":        "Movie " + id,
			"genres":       []string{"Drama"},
			"vote_average": 7.5,
			"vote_count":   120,
		}
		if id == "untitled" {
			delete(values, "title")
		}
		recomms[i] = map[string]interface{}{"id": id, "values": values}
	}
	return map[string]interface{}{"recommId": "r-1", "recomms": recomms}
}

func TestRecommendForUser(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusOK, recommResponse("3", "1", "untitled", "9"))
	})

	res := g.RecommendForUser(context.Background(), "42", 3, []string{"Action", "Drama"}, 0.3)
	require.True(t, res.OK())
	assert.Equal(t, "r-1", res.RecommID)
	require.Len(t, res.Movies, 3)
	assert.Equal(t, []string{"3", "1", "untitled"}, []string{res.Movies[0].ID, res.Movies[1].ID, res.Movies[2].ID})
	assert.Equal(t, "Unknown", res.Movies[2].Title)
	assert.Equal(t, int64(120), res.Movies[0].VoteCount)

	req := fake.seen()[0]
	assert.Equal(t, "/recomms/users/42/items/", req.Path)
	assert.Equal(t, 3.0, req.Body["count"])
	assert.Equal(t, ScenarioHomepage, req.Body["scenario"])
	assert.Equal(t, `"Action" in 'genres' or "Drama" in 'genres'`, req.Body["filter"])
	assert.Equal(t, `if 'vote_average' >= 7.5 and 'vote_count' < 1000 then 1.5 else if 'vote_average' >= 7 then 1.2 else 1`, req.Body["booster"])
	assert.Equal(t, map[string]interface{}{"name": LogicHybrid}, req.Body["logic"])
	assert.Equal(t, 0.3, req.Body["diversity"])
	assert.Equal(t, true, req.Body["returnProperties"])
}

func TestRecommendForNewUserAndSimilar(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusOK, recommResponse("1"))
	})
	ctx := context.Background()

	require.True(t, g.RecommendForNewUser(ctx, nil, 5).OK())
	require.True(t, g.RecommendSimilar(ctx, "862", 5, "").OK())

	reqs := fake.seen()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/recomms/users/cold_start_temp/items/", reqs[0].Path)
	assert.Equal(t, LogicContentBased, reqs[0].Body["logic"].(map[string]interface{})["name"])
	assert.Equal(t, `'vote_average' * (if 'vote_count' > 1000 then 1.5 else 1)`, reqs[0].Body["booster"])
	_, hasFilter := reqs[0].Body["filter"]
	assert.False(t, hasFilter)

	assert.Equal(t, "/recomms/items/862/items/", reqs[1].Path)
	assert.Equal(t, ScenarioSimilarMovies, reqs[1].Body["scenario"])
	_, hasTarget := reqs[1].Body["targetUserId"]
	assert.False(t, hasTarget)
}

func TestRecommend_BreakerOpens(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "down"})
	})
	ctx := context.Background()

	first := g.RecommendSimilar(ctx, "1", 5, "")
	assert.Equal(t, "rejected", first.Reason())
	assert.NotNil(t, first.Movies)
	assert.Empty(t, first.Movies)

	g.RecommendSimilar(ctx, "1", 5, "")
	third := g.RecommendSimilar(ctx, "1", 5, "")
	assert.Equal(t, "circuit_open", third.Reason())
	assert.Len(t, fake.seen(), 2)
}

func TestRecommend_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		if strings.Contains(r.Path, "bad user") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		writeJSON(w, http.StatusOK, recommResponse("862"))
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := g.RecommendForUser(ctx, "bad user", 5, nil, 0)
		assert.Equal(t, "rejected", res.Reason())
	}

	ok := g.RecommendForUser(ctx, "42", 5, nil, 0)
	require.NoError(t, ok.Err)
	assert.Len(t, ok.Movies, 1)
	assert.Len(t, fake.seen(), 6)
}

func TestTripsBreaker(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("op: %w", context.Canceled), false},
		{"bad request", apperrors.NewServiceRejectedError("op", http.StatusBadRequest, ""), false},
		{"not found", apperrors.NewServiceRejectedError("op", http.StatusNotFound, ""), false},
		{"too many requests", apperrors.NewServiceRejectedError("op", http.StatusTooManyRequests, ""), true},
		{"server error", apperrors.NewServiceRejectedError("op", http.StatusBadGateway, ""), true},
		{"timeout", apperrors.NewServiceTimeoutError("op", errors.New("deadline")), true},
		{"transport", apperrors.NewServiceRequestFailedError("op", errors.New("refused")), true},
		{"auth", apperrors.NewServiceAuthFailedError(http.StatusUnauthorized, ""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tripsBreaker(tt.err))
		})
	}
}

func TestVerifyDataQuality(t *testing.T) {
	g, fake := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"itemId": "862", "title": "Toy Story", "overview": "x", "genres": []string{"Animation"}, "keywords": []string{}, "director": "John Lasseter", "actors": []string{"Tom Hanks"}, "poster_path": "/p.jpg", "vote_average": 7.7},
			{"itemId": "1", "title": "Bare", "overview": "", "genres": []string{}, "keywords": []string{}, "director": "", "actors": []string{}, "poster_path": "", "vote_average": 0},
		})
	})

	res := g.VerifyDataQuality(context.Background(), 5)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Sampled)
	assert.Equal(t, 2, res.Filled["title"])
	assert.Equal(t, 1, res.Filled["director"])
	assert.Equal(t, 0, res.Filled["keywords"])
	assert.Equal(t, []string{"keywords"}, res.Samples[0].Missing)
	assert.Contains(t, res.Samples[1].Missing, "genres")
	assert.Contains(t, fake.seen()[0].Query, "count=5")
	assert.Contains(t, fake.seen()[0].Query, "returnProperties=true")
}

func TestGetStats_DegradesOnError(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r recorded) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "x"})
	})
	res := g.GetStats(context.Background())
	assert.Error(t, res.Err)
	assert.Equal(t, 0, res.TotalItems)
	assert.Equal(t, 0, res.TotalUsers)
}
