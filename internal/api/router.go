// Package api exposes the service over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"movie-recommender/internal/common/config"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/service"
)

// Service is what the handlers call.
type Service interface {
	DemoMode() bool
	Recommendations(ctx context.Context, req service.RecommendationsRequest) service.RecommendationsResponse
	Similar(ctx context.Context, movieID string, count int, userID string) service.SimilarResponse
	Popular(count int) service.MoviesResponse
	Movie(movieID string) (service.MovieResponse, error)
	Rate(ctx context.Context, req service.RateRequest) (service.WriteResponse, error)
	View(ctx context.Context, userID, movieID string) (service.WriteResponse, error)
	Register(ctx context.Context, req service.RegisterRequest) (service.RegisterResponse, error)
	Genres() service.GenresResponse
	Preferences(ctx context.Context, userID string) service.PreferencesResponse
	Search(ctx context.Context, query string, count int) service.MoviesResponse
	Stats(ctx context.Context) service.StatsResponse
}

type Handler struct {
	svc    Service
	logger logger.Logger
}

func NewHandler(svc Service, log logger.Logger) *Handler {
	return &Handler{svc: svc, logger: log.WithFields(map[string]interface{}{"component": "api"})}
}

// NewRouter wires middleware and routes.
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))
	r.Use(h.observe)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			window := config.GetDuration(cfg.RateLimitWindow)
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, window))
		}

		r.Get("/recommendations", h.Recommendations)
		r.Get("/similar/{movieID}", h.Similar)
		r.Get("/popular", h.Popular)
		r.Get("/movie/{movieID}", h.Movie)
		r.Post("/rate", h.Rate)
		r.Post("/view", h.View)
		r.Post("/user/register", h.Register)
		r.Get("/user/{userID}/preferences", h.Preferences)
		r.Get("/genres", h.Genres)
		r.Get("/search", h.Search)
		r.Get("/stats", h.Stats)
	})
	return r
}

// observe records request metrics under the matched route pattern and
// writes an access log line.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		fields := map[string]interface{}{
			"method":    r.Method,
			"route":     route,
			"status":    status,
			"duration":  elapsed.String(),
			"requestId": chimiddleware.GetReqID(r.Context()),
		}
		if status >= 500 {
			h.logger.Warn("request failed", fields)
			return
		}
		h.logger.Debug("request served", fields)
	})
}
