// Package app assembles the HTTP service and the ingestion pipeline from
// configuration. Optional backing stores (Redis, Elasticsearch, Postgres)
// are connected only when configured; a store that fails to connect is
// logged and left out.
package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"movie-recommender/internal/api"
	"movie-recommender/internal/catalog"
	"movie-recommender/internal/catalog/search"
	"movie-recommender/internal/common/config"
	"movie-recommender/internal/common/database"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/observability"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/normalizer"
	"movie-recommender/internal/ingest/runlog"
	"movie-recommender/internal/models"
	"movie-recommender/internal/profile"
	"movie-recommender/internal/service"
)

const defaultSearchIndex = "movies"

// App is the running HTTP service.
type App struct {
	Handler http.Handler
	Service *service.Service
	Gateway *gateway.Gateway

	obs     *observability.Observability
	logger  logger.Logger
	closers []func() error
}

// New connects the configured stores and builds the router.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{
		obs:    observability.New(cfg.App.Name),
		logger: log.WithFields(map[string]interface{}{"component": "app"}),
	}

	a.Gateway = gateway.New(cfg.Recommender, log, gateway.WithObservability(a.obs))
	if !a.Gateway.Configured() {
		a.logger.Warn("recommendation service not configured, serving demo data", nil)
	}

	lazy := catalog.NewLazy(func() (*catalog.Snapshot, error) {
		return catalog.Load(cfg.Dataset, log)
	}, log)

	history := profile.NewHistory(func() ([]models.RatingInteraction, error) {
		ratings, _, err := normalizer.New(log).LoadRatingsFile(cfg.Dataset.RatingsPath(), 0)
		return ratings, err
	}, log)

	var store profile.Store
	if rdb := a.connectRedis(ctx, cfg.Database.Redis); rdb != nil {
		store = profile.NewCache(rdb, config.GetDuration(cfg.Recommendations.ProfileCacheTTL))
	}
	profiles := profile.NewService(history.For, func(id string) (models.MovieSummary, bool) {
		return lazy.Snapshot().ByID(id)
	}, store, cfg.Recommendations.MinRatingForLike, log)

	opts := []service.Option{}
	if es := a.connectElasticsearch(ctx, cfg.Database.Elasticsearch); es != nil {
		opts = append(opts, service.WithSearcher(search.New(es, indexName(cfg.Database.Elasticsearch), log)))
	}
	if db := a.connectPostgres(ctx, cfg.Database.Postgres); db != nil {
		opts = append(opts, service.WithRunHistory(runlog.New(db, log)))
	}

	a.Service = service.New(a.Gateway, lazy, profiles, cfg.Recommendations, log, opts...)
	a.Handler = api.NewRouter(api.NewHandler(a.Service, log), cfg.Server)
	return a, nil
}

// Close releases every connection opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.obs.Shutdown()
	return errors.Join(errs...)
}

func (a *App) connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	rdb, err := database.NewRedis(ctx, cfg)
	if err != nil {
		a.logger.Warn("redis unavailable, profile cache disabled", map[string]interface{}{"error": err})
		return nil
	}
	a.closers = append(a.closers, rdb.Close)
	return rdb
}

func (a *App) connectElasticsearch(ctx context.Context, cfg config.ElasticsearchConfig) *elasticsearch.Client {
	if !cfg.Enabled() {
		return nil
	}
	es, err := database.NewElasticsearch(ctx, cfg)
	if err != nil {
		a.logger.Warn("elasticsearch unavailable, search falls back to titles", map[string]interface{}{"error": err})
		return nil
	}
	return es
}

func (a *App) connectPostgres(ctx context.Context, cfg config.PostgresConfig) *sql.DB {
	if !cfg.Enabled() {
		return nil
	}
	db, err := database.NewPostgres(ctx, cfg)
	if err != nil {
		a.logger.Warn("postgres unavailable, ingestion history disabled", map[string]interface{}{"error": err})
		return nil
	}
	a.closers = append(a.closers, db.Close)
	return db
}

func indexName(cfg config.ElasticsearchConfig) string {
	if cfg.Index != "" {
		return cfg.Index
	}
	return defaultSearchIndex
}
