package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-recommender/internal/catalog"
	"movie-recommender/internal/catalog/search"
	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/runlog"
	"movie-recommender/internal/models"
	"movie-recommender/internal/profile"
)

type fakeGateway struct {
	configured bool
	result     gateway.RecommendationResult
	writeErr   error
	stats      gateway.StatsResult

	lastUser    string
	lastGenres  []string
	lastCount   int
	newUserCall bool
	rating      float64
	timestamp   *int64
	created     models.UserValues
	views       int
}

func (f *fakeGateway) Configured() bool { return f.configured }

func (f *fakeGateway) RecommendForUser(_ context.Context, userID string, count int, genres []string, _ float64) gateway.RecommendationResult {
	f.lastUser, f.lastCount, f.lastGenres = userID, count, genres
	return f.result
}

func (f *fakeGateway) RecommendForNewUser(_ context.Context, genres []string, count int) gateway.RecommendationResult {
	f.newUserCall = true
	f.lastCount, f.lastGenres = count, genres
	return f.result
}

func (f *fakeGateway) RecommendSimilar(_ context.Context, movieID string, count int, _ string) gateway.RecommendationResult {
	f.lastCount = count
	return f.result
}

func (f *fakeGateway) RecordRating(_ context.Context, _, _ string, rating float64, ts *int64) error {
	f.rating, f.timestamp = rating, ts
	return f.writeErr
}

func (f *fakeGateway) RecordView(context.Context, string, string, *int64) error {
	f.views++
	return f.writeErr
}

func (f *fakeGateway) CreateUser(_ context.Context, _ string, values models.UserValues) error {
	f.created = values
	return f.writeErr
}

func (f *fakeGateway) GetStats(context.Context) gateway.StatsResult { return f.stats }

type staticCatalog struct{ snap *catalog.Snapshot }

func (c staticCatalog) Snapshot() *catalog.Snapshot { return c.snap }

type fakeProfiles struct {
	declared map[string]profile.Declared
	derived  models.UserPreferenceProfile
}

func (f *fakeProfiles) Profile(_ context.Context, userID string) models.UserPreferenceProfile {
	p := f.derived
	p.UserID = userID
	return p
}

func (f *fakeProfiles) Declare(_ context.Context, userID string, genres, directors []string) error {
	if f.declared == nil {
		f.declared = map[string]profile.Declared{}
	}
	f.declared[userID] = profile.Declared{UserID: userID, PreferredGenres: genres, PreferredDirectors: directors}
	return nil
}

func (f *fakeProfiles) Declared(_ context.Context, userID string) (profile.Declared, bool) {
	d, ok := f.declared[userID]
	return d, ok
}

type fakeSearcher struct {
	res search.Result
	err error
}

func (f fakeSearcher) Search(context.Context, string, int) (search.Result, error) {
	return f.res, f.err
}

type fakeRuns struct{ run *runlog.Run }

func (f fakeRuns) Last(context.Context) (*runlog.Run, error) { return f.run, nil }

func recCfg() config.RecommendationsConfig {
	return config.RecommendationsConfig{
		DefaultCount:    10,
		PopularCount:    20,
		SimilarCount:    6,
		Diversity:       0.3,
		ColdStartGenres: []string{"Action", "Drama"},
	}
}

func testCatalog() staticCatalog {
	return staticCatalog{snap: catalog.New([]models.MovieRecord{
		{ID: 1, Title: "One", Genres: []string{"Drama"}, VoteAverage: 8, VoteCount: 1000},
		{ID: 2, Title: "Two", Genres: []string{"Comedy"}, VoteAverage: 7, VoteCount: 1000},
		{ID: 3, Title: "Three", Genres: []string{"Drama"}, VoteAverage: 6, VoteCount: 1000},
		{ID: 4, Title: "Four", Genres: []string{"Horror"}, VoteAverage: 5, VoteCount: 10},
	})}
}

func newTestService(t *testing.T, gw *fakeGateway, opts ...Option) (*Service, *fakeProfiles) {
	profiles := &fakeProfiles{}
	s := New(gw, testCatalog(), profiles, recCfg(), logger.NewTestLogger(t), opts...)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, profiles
}

func TestRecommendations_DemoMode(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{})

	resp := s.Recommendations(context.Background(), RecommendationsRequest{Count: 3})
	assert.True(t, resp.Success)
	assert.True(t, resp.DemoMode)
	assert.Equal(t, MethodDemo, resp.Method)
	require.Len(t, resp.Recommendations, 3)
	assert.Equal(t, "Toy Story", resp.Recommendations[0].Title)

	filtered := s.Recommendations(context.Background(), RecommendationsRequest{Count: 10, Genres: []string{"Crime"}})
	for _, m := range filtered.Recommendations {
		assert.Contains(t, m.Genres, "Crime")
	}
	assert.Len(t, filtered.Recommendations, 3)

	capped := s.Recommendations(context.Background(), RecommendationsRequest{Count: 2, Genres: []string{"Crime"}})
	require.Len(t, capped.Recommendations, 2)
	for _, m := range capped.Recommendations {
		assert.Contains(t, m.Genres, "Crime")
	}
}

func TestRecommendations_KnownUser(t *testing.T) {
	gw := &fakeGateway{configured: true, result: gateway.RecommendationResult{
		RecommID: "r-1",
		Movies:   []models.MovieSummary{{ID: "603", Title: "The Matrix"}},
	}}
	s, _ := newTestService(t, gw)

	resp := s.Recommendations(context.Background(), RecommendationsRequest{UserID: "42", Genres: []string{" Action ", ""}})
	assert.Equal(t, MethodHybrid, resp.Method)
	assert.Equal(t, "r-1", resp.RecommID)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "42", gw.lastUser)
	assert.Equal(t, 10, gw.lastCount)
	assert.Equal(t, []string{"Action"}, gw.lastGenres)
}

func TestRecommendations_AnonymousUsesContentBased(t *testing.T) {
	gw := &fakeGateway{configured: true, result: gateway.RecommendationResult{Movies: []models.MovieSummary{{ID: "1"}}}}
	s, _ := newTestService(t, gw)

	resp := s.Recommendations(context.Background(), RecommendationsRequest{Count: 5})
	assert.Equal(t, MethodContentBased, resp.Method)
	assert.True(t, gw.newUserCall)
	assert.Equal(t, 5, gw.lastCount)
}

func TestRecommendations_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		result gateway.RecommendationResult
		reason string
	}{
		{"service error", gateway.RecommendationResult{Err: apperrors.NewServiceRejectedError("recommend", 400, "bad")}, "rejected"},
		{"circuit open", gateway.RecommendationResult{Err: apperrors.NewCircuitOpenError("gateway", errors.New("open"))}, "circuit_open"},
		{"empty answer", gateway.RecommendationResult{Movies: []models.MovieSummary{}}, ReasonEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t, &fakeGateway{configured: true, result: tt.result})

			resp := s.Recommendations(context.Background(), RecommendationsRequest{UserID: "1", Count: 2})
			assert.True(t, resp.Success)
			assert.True(t, resp.Fallback)
			assert.Equal(t, MethodPopular, resp.Method)
			assert.Equal(t, tt.reason, resp.Reason)
			require.Len(t, resp.Recommendations, 2)
			assert.Equal(t, "1", resp.Recommendations[0].ID)
		})
	}
}

func TestRecommendations_FallbackHonoursGenres(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{configured: true, result: gateway.RecommendationResult{Err: errors.New("x")}})

	resp := s.Recommendations(context.Background(), RecommendationsRequest{Count: 5, Genres: []string{"Comedy"}})
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "2", resp.Recommendations[0].ID)
}

func TestSimilar(t *testing.T) {
	t.Run("demo excludes source", func(t *testing.T) {
		s, _ := newTestService(t, &fakeGateway{})
		resp := s.Similar(context.Background(), "862", 3, "")
		assert.True(t, resp.DemoMode)
		require.Len(t, resp.SimilarMovies, 3)
		for _, m := range resp.SimilarMovies {
			assert.NotEqual(t, "862", m.ID)
		}
	})

	t.Run("fallback by genre", func(t *testing.T) {
		s, _ := newTestService(t, &fakeGateway{configured: true, result: gateway.RecommendationResult{Err: errors.New("down")}})
		resp := s.Similar(context.Background(), "1", 0, "")
		assert.True(t, resp.Fallback)
		require.Len(t, resp.SimilarMovies, 1)
		assert.Equal(t, "3", resp.SimilarMovies[0].ID)
	})

	t.Run("service answer", func(t *testing.T) {
		gw := &fakeGateway{configured: true, result: gateway.RecommendationResult{Movies: []models.MovieSummary{{ID: "9"}}}}
		s, _ := newTestService(t, gw)
		resp := s.Similar(context.Background(), "1", 0, "")
		assert.False(t, resp.Fallback)
		assert.Equal(t, 6, gw.lastCount)
	})
}

func TestPopularAndMovie(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{})

	pop := s.Popular(0)
	require.Len(t, pop.Movies, 3)
	assert.Equal(t, "1", pop.Movies[0].ID)
	assert.False(t, pop.DemoMode)

	m, err := s.Movie("2")
	require.NoError(t, err)
	assert.Equal(t, "Two", m.Movie.Title)

	_, err = s.Movie("999")
	assert.Equal(t, apperrors.ErrCodeMovieNotFound, apperrors.CodeOf(err))
}

func TestRate(t *testing.T) {
	gw := &fakeGateway{configured: true}
	s, _ := newTestService(t, gw)

	resp, err := s.Rate(context.Background(), RateRequest{UserID: "1", MovieID: "862", Rating: 4.5})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 4.5, gw.rating)
	require.NotNil(t, gw.timestamp)
	assert.Equal(t, int64(1700000000), *gw.timestamp)

	_, err = s.Rate(context.Background(), RateRequest{UserID: "1", MovieID: "862"})
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))

	gw.writeErr = apperrors.NewServiceRejectedError("add_rating", 404, "no item")
	_, err = s.Rate(context.Background(), RateRequest{UserID: "1", MovieID: "862", Rating: 3})
	assert.Equal(t, apperrors.ErrCodeServiceRejected, apperrors.CodeOf(err))
}

func TestRate_DemoMode(t *testing.T) {
	gw := &fakeGateway{}
	s, _ := newTestService(t, gw)
	resp, err := s.Rate(context.Background(), RateRequest{UserID: "1", MovieID: "862", Rating: 4})
	require.NoError(t, err)
	assert.True(t, resp.DemoMode)
	assert.Zero(t, gw.rating)
}

func TestView(t *testing.T) {
	gw := &fakeGateway{configured: true}
	s, _ := newTestService(t, gw)
	_, err := s.View(context.Background(), "1", "862")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.views)

	_, err = s.View(context.Background(), "", "862")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	gw := &fakeGateway{configured: true}
	s, profiles := newTestService(t, gw)

	resp, err := s.Register(context.Background(), RegisterRequest{PreferredGenres: []string{"Drama", " "}})
	require.NoError(t, err)
	assert.Len(t, resp.UserID, 36)
	assert.Equal(t, []string{"Drama"}, gw.created.PreferredGenres)
	assert.Equal(t, "2023-11-14T22:13:20Z", gw.created.RegistrationDate)
	assert.Contains(t, profiles.declared, resp.UserID)

	gw.writeErr = apperrors.NewServiceAuthFailedError(401, "nope")
	_, err = s.Register(context.Background(), RegisterRequest{})
	assert.Error(t, err)
}

func TestPreferences(t *testing.T) {
	s, profiles := newTestService(t, &fakeGateway{})

	fresh := s.Preferences(context.Background(), "nobody")
	assert.True(t, fresh.IsNewUser)
	assert.Equal(t, []string{}, fresh.PreferredGenres)

	require.NoError(t, profiles.Declare(context.Background(), "u", []string{"Drama"}, []string{}))
	known := s.Preferences(context.Background(), "u")
	assert.False(t, known.IsNewUser)
	assert.Equal(t, []string{"Drama"}, known.PreferredGenres)
	assert.Equal(t, "u", known.Derived.UserID)
}

func TestGenres(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{})
	resp := s.Genres()
	assert.Equal(t, []string{"Action", "Drama"}, resp.Genres)
	assert.Equal(t, []string{"Comedy", "Drama", "Horror"}, resp.Available)
}

func TestSearch(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{})
	local := s.Search(context.Background(), "t", 0)
	assert.Len(t, local.Movies, 2)
	assert.False(t, local.Fallback)

	withIndex, _ := newTestService(t, &fakeGateway{}, WithSearcher(fakeSearcher{res: search.Result{Movies: []models.MovieSummary{{ID: "603"}}, TotalHits: 1}}))
	hit := withIndex.Search(context.Background(), "matrix", 5)
	require.Len(t, hit.Movies, 1)
	assert.Equal(t, int64(1), hit.Total)

	broken, _ := newTestService(t, &fakeGateway{}, WithSearcher(fakeSearcher{err: errors.New("down")}))
	fb := broken.Search(context.Background(), "one", 5)
	assert.True(t, fb.Fallback)
	require.Len(t, fb.Movies, 1)
	assert.Equal(t, "One", fb.Movies[0].Title)
}

func TestStats(t *testing.T) {
	run := &runlog.Run{ID: "r", Status: runlog.StatusCompleted}
	gw := &fakeGateway{configured: true, stats: gateway.StatsResult{TotalItems: 4, TotalUsers: 2}}
	s, _ := newTestService(t, gw, WithRunHistory(fakeRuns{run: run}))

	resp := s.Stats(context.Background())
	assert.Equal(t, 4, resp.TotalItems)
	assert.Equal(t, 2, resp.TotalUsers)
	assert.Equal(t, 4, resp.CatalogMovies)
	assert.Equal(t, run, resp.LastIngestion)

	gw.stats = gateway.StatsResult{Err: apperrors.NewServiceTimeoutError("list_items", errors.New("slow"))}
	assert.Equal(t, "timeout", s.Stats(context.Background()).Reason)

	demo, _ := newTestService(t, &fakeGateway{})
	assert.True(t, demo.Stats(context.Background()).DemoMode)
}
