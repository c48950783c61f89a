package app

import (
	"context"
	"errors"

	"movie-recommender/internal/catalog/search"
	"movie-recommender/internal/common/aws"
	"movie-recommender/internal/common/config"
	"movie-recommender/internal/common/database"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/observability"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/notify"
	"movie-recommender/internal/ingest/pipeline"
	"movie-recommender/internal/ingest/runlog"
)

// Ingestion is a pipeline plus the connections it holds.
type Ingestion struct {
	Pipeline *pipeline.Pipeline
	Gateway  *gateway.Gateway
	Ledger   *runlog.Ledger
	Obs      *observability.Observability

	closers []func() error
}

// NewIngestion builds the pipeline with every configured side effect:
// catalog indexing, the run ledger and the end-of-run notification.
func NewIngestion(ctx context.Context, cfg *config.Config, log logger.Logger) (*Ingestion, error) {
	in := &Ingestion{Obs: observability.New(cfg.App.Name + "-ingest")}
	l := log.WithFields(map[string]interface{}{"component": "app"})

	in.Gateway = gateway.New(cfg.Recommender, log, gateway.WithObservability(in.Obs))
	opts := []pipeline.Option{}

	if cfg.Ingestion.IndexCatalog && cfg.Database.Elasticsearch.Enabled() {
		es, err := database.NewElasticsearch(ctx, cfg.Database.Elasticsearch)
		if err != nil {
			l.Warn("elasticsearch unavailable, catalog will not be indexed", map[string]interface{}{"error": err})
		} else {
			ix := search.New(es, indexName(cfg.Database.Elasticsearch), log)
			if err := ix.EnsureIndex(ctx); err != nil {
				l.Warn("search index not ready, catalog will not be indexed", map[string]interface{}{"error": err})
			} else {
				opts = append(opts, pipeline.WithIndexer(ix))
			}
		}
	}

	if cfg.Database.Postgres.Enabled() {
		db, err := database.NewPostgres(ctx, cfg.Database.Postgres)
		if err != nil {
			l.Warn("postgres unavailable, run will not be recorded", map[string]interface{}{"error": err})
		} else {
			in.closers = append(in.closers, db.Close)
			ledger := runlog.New(db, log)
			if err := ledger.EnsureSchema(ctx); err != nil {
				l.Warn("run ledger schema not ready", map[string]interface{}{"error": err})
			} else {
				in.Ledger = ledger
				opts = append(opts, pipeline.WithLedger(ledger))
			}
		}
	}

	if cfg.Ingestion.Notify {
		clients, err := aws.NewClients(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			l.Warn("aws clients unavailable, run summary will not be sent", map[string]interface{}{"error": err})
		} else if n := notify.New(cfg.Notifications, clients, log); n.Enabled() {
			opts = append(opts, pipeline.WithNotifier(n))
		}
	}

	in.Pipeline = pipeline.New(cfg.Dataset, in.Gateway, log, opts...)
	return in, nil
}

// Options derives run options from the configured batch sizes.
func Options(cfg config.IngestionConfig) pipeline.Options {
	return pipeline.Options{
		MovieBatchSize:  cfg.MovieBatchSize,
		RatingBatchSize: cfg.RatingBatchSize,
	}
}

func (in *Ingestion) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.Obs.Shutdown()
	return errors.Join(errs...)
}
