// Package service orchestrates the recommendation gateway, the local
// catalog and the preference store for the HTTP layer. Read operations
// always produce a payload; write operations return errors.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"movie-recommender/internal/catalog"
	"movie-recommender/internal/catalog/search"
	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/runlog"
	"movie-recommender/internal/models"
	"movie-recommender/internal/profile"
)

const (
	MethodHybrid       = "hybrid"
	MethodContentBased = "content_based"
	MethodDemo         = "demo"
	MethodPopular      = "popular_fallback"

	// ReasonEmpty marks a successful query that returned nothing.
	ReasonEmpty = "empty"

	demoMessage = "Running in demo mode - configure the recommendation service for full functionality"
)

type Gateway interface {
	Configured() bool
	RecommendForUser(ctx context.Context, userID string, count int, genres []string, diversity float64) gateway.RecommendationResult
	RecommendForNewUser(ctx context.Context, genres []string, count int) gateway.RecommendationResult
	RecommendSimilar(ctx context.Context, movieID string, count int, targetUserID string) gateway.RecommendationResult
	RecordRating(ctx context.Context, userID, movieID string, rating float64, timestamp *int64) error
	RecordView(ctx context.Context, userID, movieID string, timestamp *int64) error
	CreateUser(ctx context.Context, userID string, values models.UserValues) error
	GetStats(ctx context.Context) gateway.StatsResult
}

type Catalog interface {
	Snapshot() *catalog.Snapshot
}

type Searcher interface {
	Search(ctx context.Context, query string, size int) (search.Result, error)
}

type Profiles interface {
	Profile(ctx context.Context, userID string) models.UserPreferenceProfile
	Declare(ctx context.Context, userID string, genres, directors []string) error
	Declared(ctx context.Context, userID string) (profile.Declared, bool)
}

type RunHistory interface {
	Last(ctx context.Context) (*runlog.Run, error)
}

type Service struct {
	gateway  Gateway
	catalog  Catalog
	profiles Profiles
	searcher Searcher
	runs     RunHistory
	cfg      config.RecommendationsConfig
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithSearcher(s Searcher) Option { return func(svc *Service) { svc.searcher = s } }

func WithRunHistory(r RunHistory) Option { return func(svc *Service) { svc.runs = r } }

func New(gw Gateway, cat Catalog, profiles Profiles, cfg config.RecommendationsConfig, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		gateway:  gw,
		catalog:  cat,
		profiles: profiles,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "service"}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DemoMode reports whether the recommendation service is unconfigured.
func (s *Service) DemoMode() bool { return !s.gateway.Configured() }

type RecommendationsRequest struct {
	UserID string
	Count  int
	Genres []string
}

type RecommendationsResponse struct {
	Success         bool                  `json:"success"`
	Recommendations []models.MovieSummary `json:"recommendations"`
	Method          string                `json:"method"`
	UserID          string                `json:"user_id,omitempty"`
	RecommID        string                `json:"recomm_id,omitempty"`
	DemoMode        bool                  `json:"demo_mode,omitempty"`
	Fallback        bool                  `json:"fallback,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	Message         string                `json:"message,omitempty"`
}

// Recommendations serves a known user from the hybrid model and an
// anonymous visitor from content attributes. Errors and empty answers fall
// back to the popular listing.
func (s *Service) Recommendations(ctx context.Context, req RecommendationsRequest) RecommendationsResponse {
	count := s.count(req.Count, s.cfg.DefaultCount)
	genres := cleanList(req.Genres)

	if s.DemoMode() {
		movies := catalog.Demo().MatchingGenres(genres, count)
		return RecommendationsResponse{
			Success:         true,
			Recommendations: movies,
			Method:          MethodDemo,
			UserID:          req.UserID,
			DemoMode:        true,
			Message:         demoMessage,
		}
	}

	var (
		res    gateway.RecommendationResult
		method string
	)
	if req.UserID != "" {
		method = MethodHybrid
		res = s.gateway.RecommendForUser(ctx, req.UserID, count, genres, s.cfg.Diversity)
	} else {
		method = MethodContentBased
		res = s.gateway.RecommendForNewUser(ctx, genres, count)
	}

	if res.OK() && len(res.Movies) > 0 {
		return RecommendationsResponse{
			Success:         true,
			Recommendations: res.Movies,
			Method:          method,
			UserID:          req.UserID,
			RecommID:        res.RecommID,
		}
	}

	reason := fallbackReason(res)
	s.fallback("recommendations", reason)
	snap := s.catalog.Snapshot()
	movies := snap.Popular(count)
	if len(genres) > 0 {
		if filtered := filterGenres(snap.Popular(s.cfg.PopularCount+count), genres); len(filtered) > 0 {
			movies = truncate(filtered, count)
		}
	}
	return RecommendationsResponse{
		Success:         true,
		Recommendations: movies,
		Method:          MethodPopular,
		UserID:          req.UserID,
		DemoMode:        snap.IsDemo(),
		Fallback:        true,
		Reason:          reason,
	}
}

type SimilarResponse struct {
	Success       bool                  `json:"success"`
	SimilarMovies []models.MovieSummary `json:"similar_movies"`
	SourceMovieID string                `json:"source_movie_id"`
	DemoMode      bool                  `json:"demo_mode,omitempty"`
	Fallback      bool                  `json:"fallback,omitempty"`
	Reason        string                `json:"reason,omitempty"`
}

// Similar returns movies like movieID. The fallback picks catalog movies
// sharing the source's first genre.
func (s *Service) Similar(ctx context.Context, movieID string, count int, userID string) SimilarResponse {
	count = s.count(count, s.cfg.SimilarCount)
	resp := SimilarResponse{Success: true, SourceMovieID: movieID}

	if s.DemoMode() {
		resp.DemoMode = true
		resp.SimilarMovies = excluding(catalog.Demo().Popular(count+1), movieID, count)
		return resp
	}

	res := s.gateway.RecommendSimilar(ctx, movieID, count, userID)
	if res.OK() && len(res.Movies) > 0 {
		resp.SimilarMovies = res.Movies
		return resp
	}

	resp.Fallback = true
	resp.Reason = fallbackReason(res)
	s.fallback("similar", resp.Reason)
	snap := s.catalog.Snapshot()
	resp.DemoMode = snap.IsDemo()
	if src, ok := snap.ByID(movieID); ok && len(src.Genres) > 0 {
		resp.SimilarMovies = excluding(snap.ByGenre(src.Genres[0], count+1), movieID, count)
	}
	if len(resp.SimilarMovies) == 0 {
		resp.SimilarMovies = excluding(snap.Popular(count+1), movieID, count)
	}
	return resp
}

type MoviesResponse struct {
	Success  bool                  `json:"success"`
	Movies   []models.MovieSummary `json:"movies"`
	DemoMode bool                  `json:"demo_mode,omitempty"`
	Fallback bool                  `json:"fallback,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Total    int64                 `json:"total,omitempty"`
}

// Popular ranks the local catalog; it never calls the service.
func (s *Service) Popular(count int) MoviesResponse {
	snap := s.catalog.Snapshot()
	return MoviesResponse{
		Success:  true,
		Movies:   snap.Popular(s.count(count, s.cfg.PopularCount)),
		DemoMode: snap.IsDemo(),
	}
}

type MovieResponse struct {
	Success  bool                `json:"success"`
	Movie    models.MovieSummary `json:"movie"`
	DemoMode bool                `json:"demo_mode,omitempty"`
}

// Movie looks up one movie in the local catalog.
func (s *Service) Movie(movieID string) (MovieResponse, error) {
	snap := s.catalog.Snapshot()
	m, ok := snap.ByID(movieID)
	if !ok {
		return MovieResponse{}, apperrors.NewMovieNotFoundError(movieID)
	}
	return MovieResponse{Success: true, Movie: m, DemoMode: snap.IsDemo()}, nil
}

type RateRequest struct {
	UserID  string
	MovieID string
	Rating  float64
}

type WriteResponse struct {
	Success  bool   `json:"success"`
	DemoMode bool   `json:"demo_mode,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Rate forwards a 1-5 rating. In demo mode the rating is accepted and
// dropped.
func (s *Service) Rate(ctx context.Context, req RateRequest) (WriteResponse, error) {
	if req.UserID == "" || req.MovieID == "" || req.Rating == 0 {
		return WriteResponse{}, apperrors.NewInvalidRequestError("missing required fields: user_id, movie_id, rating")
	}
	if s.DemoMode() {
		return WriteResponse{Success: true, DemoMode: true}, nil
	}
	ts := s.now().Unix()
	if err := s.gateway.RecordRating(ctx, req.UserID, req.MovieID, req.Rating, &ts); err != nil {
		s.logger.Error("rating not recorded", map[string]interface{}{
			"userId":  req.UserID,
			"movieId": req.MovieID,
			"error":   err,
		})
		return WriteResponse{}, err
	}
	return WriteResponse{Success: true, Message: "rating recorded"}, nil
}

// View records a detail view.
func (s *Service) View(ctx context.Context, userID, movieID string) (WriteResponse, error) {
	if userID == "" || movieID == "" {
		return WriteResponse{}, apperrors.NewInvalidRequestError("missing required fields: user_id, movie_id")
	}
	if s.DemoMode() {
		return WriteResponse{Success: true, DemoMode: true}, nil
	}
	ts := s.now().Unix()
	if err := s.gateway.RecordView(ctx, userID, movieID, &ts); err != nil {
		s.logger.Error("view not recorded", map[string]interface{}{"userId": userID, "movieId": movieID, "error": err})
		return WriteResponse{}, err
	}
	return WriteResponse{Success: true}, nil
}

type RegisterRequest struct {
	PreferredGenres    []string
	PreferredDirectors []string
}

type RegisterResponse struct {
	Success  bool   `json:"success"`
	UserID   string `json:"user_id"`
	DemoMode bool   `json:"demo_mode,omitempty"`
	Message  string `json:"message"`
}

// Register creates a user id and stores the declared preferences locally
// and, when configured, with the recommendation service.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	userID := uuid.New().String()
	genres := cleanList(req.PreferredGenres)
	directors := cleanList(req.PreferredDirectors)

	if err := s.profiles.Declare(ctx, userID, genres, directors); err != nil {
		s.logger.Warn("declared preferences not stored", map[string]interface{}{"userId": userID, "error": err})
	}

	if s.DemoMode() {
		return RegisterResponse{Success: true, UserID: userID, DemoMode: true, Message: "user registered"}, nil
	}
	err := s.gateway.CreateUser(ctx, userID, models.UserValues{
		PreferredGenres:    genres,
		PreferredDirectors: directors,
		RegistrationDate:   s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("user not created", map[string]interface{}{"userId": userID, "error": err})
		return RegisterResponse{}, err
	}
	return RegisterResponse{Success: true, UserID: userID, Message: "user registered"}, nil
}

type GenresResponse struct {
	Genres    []string `json:"genres"`
	Available []string `json:"available"`
}

// Genres returns the onboarding genre list alongside every genre present
// in the loaded catalog.
func (s *Service) Genres() GenresResponse {
	genres := s.cfg.ColdStartGenres
	if len(genres) == 0 {
		genres = config.DefaultColdStartGenres
	}
	return GenresResponse{
		Genres:    append([]string(nil), genres...),
		Available: s.catalog.Snapshot().Genres(),
	}
}

type PreferencesResponse struct {
	UserID             string                       `json:"user_id"`
	PreferredGenres    []string                     `json:"preferred_genres"`
	PreferredDirectors []string                     `json:"preferred_directors"`
	Derived            models.UserPreferenceProfile `json:"derived"`
	IsNewUser          bool                         `json:"is_new_user"`
}

// Preferences combines declared choices with the profile derived from the
// user's ratings.
func (s *Service) Preferences(ctx context.Context, userID string) PreferencesResponse {
	resp := PreferencesResponse{
		UserID:             userID,
		PreferredGenres:    []string{},
		PreferredDirectors: []string{},
	}
	declared, ok := s.profiles.Declared(ctx, userID)
	if ok {
		resp.PreferredGenres = declared.PreferredGenres
		resp.PreferredDirectors = declared.PreferredDirectors
	}
	resp.Derived = s.profiles.Profile(ctx, userID)
	resp.IsNewUser = !ok && resp.Derived.LikedCount == 0
	return resp
}

// Search queries the search index, or the catalog titles when no index is
// configured or it fails.
func (s *Service) Search(ctx context.Context, query string, count int) MoviesResponse {
	count = s.count(count, search.DefaultSize)
	snap := s.catalog.Snapshot()
	if s.searcher != nil {
		res, err := s.searcher.Search(ctx, query, count)
		if err == nil {
			return MoviesResponse{Success: true, Movies: res.Movies, Total: res.TotalHits}
		}
		s.logger.Warn("search index unavailable", map[string]interface{}{"error": err})
		s.fallback("search", "search_unavailable")
		movies := snap.Search(query, count)
		return MoviesResponse{
			Success:  true,
			Movies:   movies,
			DemoMode: snap.IsDemo(),
			Fallback: true,
			Reason:   "search_unavailable",
			Total:    int64(len(movies)),
		}
	}
	movies := snap.Search(query, count)
	return MoviesResponse{Success: true, Movies: movies, DemoMode: snap.IsDemo(), Total: int64(len(movies))}
}

type StatsResponse struct {
	Success       bool        `json:"success"`
	DemoMode      bool        `json:"demo_mode,omitempty"`
	TotalItems    int         `json:"total_items"`
	TotalUsers    int         `json:"total_users"`
	CatalogMovies int         `json:"catalog_movies"`
	LastIngestion *runlog.Run `json:"last_ingestion,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

func (s *Service) Stats(ctx context.Context) StatsResponse {
	resp := StatsResponse{Success: true, CatalogMovies: s.catalog.Snapshot().Len()}
	if s.runs != nil {
		run, err := s.runs.Last(ctx)
		if err != nil {
			s.logger.Warn("ingestion history unavailable", map[string]interface{}{"error": err})
		}
		resp.LastIngestion = run
	}
	if s.DemoMode() {
		resp.DemoMode = true
		return resp
	}
	st := s.gateway.GetStats(ctx)
	if st.Err != nil {
		resp.Reason = gateway.Reason(st.Err)
		return resp
	}
	resp.TotalItems = st.TotalItems
	resp.TotalUsers = st.TotalUsers
	return resp
}

func (s *Service) fallback(op, reason string) {
	metrics.Fallbacks.WithLabelValues(op, reason).Inc()
	s.logger.Warn("serving fallback", map[string]interface{}{"operation": op, "reason": reason})
}

func (s *Service) count(n, def int) int {
	if n > 0 {
		return n
	}
	if def > 0 {
		return def
	}
	return 10
}

func fallbackReason(res gateway.RecommendationResult) string {
	if r := res.Reason(); r != "" {
		return r
	}
	return ReasonEmpty
}

func cleanList(in []string) []string {
	out := []string{}
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func filterGenres(movies []models.MovieSummary, genres []string) []models.MovieSummary {
	out := []models.MovieSummary{}
	for _, m := range movies {
		for _, g := range m.Genres {
			if contains(genres, g) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func excluding(movies []models.MovieSummary, id string, n int) []models.MovieSummary {
	out := []models.MovieSummary{}
	for _, m := range movies {
		if len(out) == n {
			break
		}
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func truncate(movies []models.MovieSummary, n int) []models.MovieSummary {
	if len(movies) > n {
		return movies[:n]
	}
	return movies
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
