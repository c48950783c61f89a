// Package pipeline drives one ingestion run: load the dataset tables,
// merge and format them, declare the schema and stream batches to the
// recommendation service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/formatter"
	"movie-recommender/internal/ingest/merger"
	"movie-recommender/internal/ingest/normalizer"
	"movie-recommender/internal/ingest/runlog"
	"movie-recommender/internal/models"
)

// Sample sizes used by --test.
const (
	TestMovieLimit  = 100
	TestRatingLimit = 1000
)

// Sink is the part of the gateway the pipeline writes through.
type Sink interface {
	Configured() bool
	DeclareItemSchema(ctx context.Context) error
	DeclareUserSchema(ctx context.Context) error
	UpsertItems(ctx context.Context, batches [][]models.ItemPayload) (gateway.WriteReport, error)
	UpsertInteractions(ctx context.Context, batches [][]models.InteractionPayload) (gateway.WriteReport, error)
	ResetDatabase(ctx context.Context) error
}

// Indexer receives the merged catalog for full-text search.
type Indexer interface {
	IndexMovies(ctx context.Context, movies []models.MovieRecord) (int, error)
}

// Ledger records run start and outcome.
type Ledger interface {
	Start(ctx context.Context, options interface{}) (string, error)
	Finish(ctx context.Context, id, status string, summary interface{}, runErr error) error
}

// Notifier delivers the end-of-run summary.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Options select what a run loads.
type Options struct {
	MoviesOnly      bool `json:"movies_only"`
	RatingsOnly     bool `json:"ratings_only"`
	LimitMovies     int  `json:"limit_movies,omitempty"`
	LimitRatings    int  `json:"limit_ratings,omitempty"`
	MovieBatchSize  int  `json:"movie_batch_size"`
	RatingBatchSize int  `json:"rating_batch_size"`
	Reset           bool `json:"reset"`
}

// TestOptions returns o restricted to the small sample.
func (o Options) TestOptions() Options {
	o.LimitMovies = TestMovieLimit
	o.LimitRatings = TestRatingLimit
	return o
}

func (o Options) loadMovies() bool  { return !o.RatingsOnly }
func (o Options) loadRatings() bool { return !o.MoviesOnly }

// Summary is what a run did. It is stored in the ledger and sent to the
// notifier.
type Summary struct {
	RunID        string                  `json:"run_id,omitempty"`
	Status       string                  `json:"status"`
	Loads        []normalizer.LoadReport `json:"loads"`
	Merge        merger.MergeReport      `json:"merge"`
	Movies       formatter.FormatReport  `json:"movies"`
	Ratings      formatter.FormatReport  `json:"ratings"`
	Items        gateway.WriteReport     `json:"items"`
	Interactions gateway.WriteReport     `json:"interactions"`
	Indexed      int                     `json:"indexed"`
	Duration     time.Duration           `json:"duration_ns"`
	Error        string                  `json:"error,omitempty"`
}

type Pipeline struct {
	dataset  config.DatasetConfig
	sink     Sink
	norm     *normalizer.Normalizer
	indexer  Indexer
	ledger   Ledger
	notifier Notifier
	logger   logger.Logger
}

type Option func(*Pipeline)

func WithIndexer(ix Indexer) Option { return func(p *Pipeline) { p.indexer = ix } }

func WithLedger(l Ledger) Option { return func(p *Pipeline) { p.ledger = l } }

func WithNotifier(n Notifier) Option { return func(p *Pipeline) { p.notifier = n } }

func New(dataset config.DatasetConfig, sink Sink, log logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		dataset: dataset,
		sink:    sink,
		norm:    normalizer.New(log),
		logger:  log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preflight checks credentials and required files before any network call.
// Keyword and credit files are optional.
func (p *Pipeline) Preflight(opts Options) error {
	if opts.MoviesOnly && opts.RatingsOnly {
		return apperrors.NewInvalidRequestError("movies-only and ratings-only are mutually exclusive")
	}
	if !p.sink.Configured() {
		return apperrors.NewServiceUnconfiguredError("set RECOMBEE_DATABASE_ID and RECOMBEE_PRIVATE_TOKEN before ingesting")
	}
	var required []string
	if opts.loadMovies() {
		required = append(required, p.dataset.MoviesPath())
	}
	if opts.loadRatings() {
		required = append(required, p.dataset.RatingsPath())
	}
	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return apperrors.NewDatasetMissingError(path)
			}
			return apperrors.NewDatasetReadFailedError(path, err)
		}
	}
	if !opts.loadMovies() {
		return nil
	}
	for _, path := range []string{p.dataset.KeywordsPath(), p.dataset.CreditsPath()} {
		if _, err := os.Stat(path); err != nil {
			p.logger.Warn("optional dataset file unavailable", map[string]interface{}{"path": path})
		}
	}
	return nil
}

// Run executes one ingestion. Row and batch level problems end up in the
// summary; the returned error is reserved for aborts.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	sum := Summary{Status: runlog.StatusRunning}

	if err := p.Preflight(opts); err != nil {
		return p.finish(ctx, sum, start, err)
	}

	if p.ledger != nil {
		id, err := p.ledger.Start(ctx, opts)
		if err != nil {
			p.logger.Warn("run ledger unavailable", map[string]interface{}{"error": err})
		} else {
			sum.RunID = id
		}
	}

	p.logger.Info("ingestion started", map[string]interface{}{
		"runId":        sum.RunID,
		"moviesOnly":   opts.MoviesOnly,
		"ratingsOnly":  opts.RatingsOnly,
		"limitMovies":  opts.LimitMovies,
		"limitRatings": opts.LimitRatings,
	})

	if opts.Reset {
		if err := p.sink.ResetDatabase(ctx); err != nil {
			return p.finish(ctx, sum, start, apperrors.NewIngestionAbortedError("reset", err))
		}
	}

	if err := p.sink.DeclareItemSchema(ctx); err != nil {
		return p.finish(ctx, sum, start, apperrors.NewIngestionAbortedError("schema", err))
	}
	if err := p.sink.DeclareUserSchema(ctx); err != nil {
		return p.finish(ctx, sum, start, apperrors.NewIngestionAbortedError("schema", err))
	}

	if opts.loadMovies() {
		if err := p.ingestMovies(ctx, opts, &sum); err != nil {
			return p.finish(ctx, sum, start, err)
		}
	}
	if opts.loadRatings() {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, sum, start, err)
		}
		if err := p.ingestRatings(ctx, opts, &sum); err != nil {
			return p.finish(ctx, sum, start, err)
		}
	}
	return p.finish(ctx, sum, start, nil)
}

func (p *Pipeline) ingestMovies(ctx context.Context, opts Options, sum *Summary) error {
	movies, rep, err := p.norm.LoadMoviesFile(p.dataset.MoviesPath())
	sum.Loads = append(sum.Loads, rep)
	if err != nil {
		return apperrors.NewIngestionAbortedError("load_movies", err)
	}
	if opts.LimitMovies > 0 && len(movies) > opts.LimitMovies {
		movies = movies[:opts.LimitMovies]
	}

	keywords, rep, err := p.norm.LoadKeywordsFile(p.dataset.KeywordsPath())
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.ErrCodeDatasetMissing {
			return apperrors.NewIngestionAbortedError("load_keywords", err)
		}
		p.logger.Warn("keywords file missing, movies keep empty keywords", map[string]interface{}{"path": p.dataset.KeywordsPath()})
	} else {
		sum.Loads = append(sum.Loads, rep)
	}

	credits, rep, err := p.norm.LoadCreditsFile(p.dataset.CreditsPath())
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.ErrCodeDatasetMissing {
			return apperrors.NewIngestionAbortedError("load_credits", err)
		}
		p.logger.Warn("credits file missing, movies keep empty cast and director", map[string]interface{}{"path": p.dataset.CreditsPath()})
	} else {
		sum.Loads = append(sum.Loads, rep)
	}

	merged, mrep := merger.Merge(movies, keywords, credits)
	sum.Merge = mrep
	p.logger.Info("tables merged", map[string]interface{}{
		"movies":              mrep.Movies,
		"matchedKeywords":     mrep.MatchedKeywords,
		"matchedCredits":      mrep.MatchedCredits,
		"duplicateKeywordIds": mrep.DuplicateKeywordIDs,
		"duplicateCreditIds":  mrep.DuplicateCreditIDs,
	})

	items, frep := formatter.FormatMovies(merged)
	sum.Movies = frep

	if err := ctx.Err(); err != nil {
		return err
	}
	wrep, err := p.sink.UpsertItems(ctx, formatter.Batch(items, batchSize(opts.MovieBatchSize, formatter.DefaultMovieBatchSize)))
	sum.Items = wrep
	if err != nil {
		return apperrors.NewIngestionAbortedError("upsert_items", err)
	}

	if p.indexer != nil {
		n, err := p.indexer.IndexMovies(ctx, merged)
		sum.Indexed = n
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("catalog search index not updated", map[string]interface{}{"error": err})
		}
	}
	return nil
}

func (p *Pipeline) ingestRatings(ctx context.Context, opts Options, sum *Summary) error {
	ratings, rep, err := p.norm.LoadRatingsFile(p.dataset.RatingsPath(), opts.LimitRatings)
	sum.Loads = append(sum.Loads, rep)
	if err != nil {
		return apperrors.NewIngestionAbortedError("load_ratings", err)
	}

	interactions, frep := formatter.FormatRatings(ratings)
	sum.Ratings = frep

	wrep, err := p.sink.UpsertInteractions(ctx, formatter.Batch(interactions, batchSize(opts.RatingBatchSize, formatter.DefaultRatingBatchSize)))
	sum.Interactions = wrep
	if err != nil {
		return apperrors.NewIngestionAbortedError("upsert_interactions", err)
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, sum Summary, start time.Time, runErr error) (Summary, error) {
	sum.Duration = time.Since(start)
	sum.Status = status(sum, runErr)
	if runErr != nil {
		sum.Error = runErr.Error()
	}
	metrics.IngestRunDuration.WithLabelValues(sum.Status).Observe(sum.Duration.Seconds())

	fields := map[string]interface{}{
		"runId":              sum.RunID,
		"status":             sum.Status,
		"duration":           sum.Duration.String(),
		"itemsSucceeded":     sum.Items.ItemsSucceeded,
		"itemsFailed":        sum.Items.ItemsFailed,
		"ratingsSucceeded":   sum.Interactions.ItemsSucceeded,
		"ratingsFailed":      sum.Interactions.ItemsFailed,
		"catalogDocsIndexed": sum.Indexed,
	}
	if runErr != nil {
		fields["error"] = runErr
		p.logger.Error("ingestion aborted", fields)
	} else {
		p.logger.Info("ingestion finished", fields)
	}

	// Bookkeeping must outlive a canceled run.
	bg := context.WithoutCancel(ctx)
	if p.ledger != nil && sum.RunID != "" {
		if err := p.ledger.Finish(bg, sum.RunID, sum.Status, sum, runErr); err != nil {
			p.logger.Warn("run ledger not updated", map[string]interface{}{"runId": sum.RunID, "error": err})
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(bg, sum.Subject(), sum.Text()); err != nil {
			p.logger.Warn("run summary not delivered", map[string]interface{}{"error": err})
		}
	}
	return sum, runErr
}

func status(sum Summary, err error) string {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return runlog.StatusCanceled
	case err != nil:
		return runlog.StatusFailed
	case !sum.Items.Complete() || !sum.Interactions.Complete():
		return runlog.StatusPartial
	}
	return runlog.StatusCompleted
}

func batchSize(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// Subject is a one-line headline for notifications.
func (s Summary) Subject() string {
	return fmt.Sprintf("Movie ingestion %s: %d movies, %d ratings", s.Status, s.Items.ItemsSucceeded, s.Interactions.ItemsSucceeded)
}

// Text renders the summary for humans.
func (s Summary) Text() string {
	var b []byte
	b = fmt.Appendf(b, "Run:      %s\n", s.RunID)
	b = fmt.Appendf(b, "Status:   %s\n", s.Status)
	b = fmt.Appendf(b, "Duration: %s\n", s.Duration.Round(time.Millisecond))
	for _, l := range s.Loads {
		b = fmt.Appendf(b, "Table %-9s read %d, kept %d, dropped %d (invalid id %d, empty title %d, malformed %d)\n",
			l.Table, l.RowsRead, l.RowsKept, l.Dropped(), l.DroppedInvalidID, l.DroppedEmptyTitle, l.MalformedRows)
	}
	b = fmt.Appendf(b, "Movies:   %d sent in %d batches, %d accepted, %d failed\n",
		s.Items.Items, s.Items.Batches, s.Items.ItemsSucceeded, s.Items.ItemsFailed)
	b = fmt.Appendf(b, "Ratings:  %d sent in %d batches, %d accepted, %d failed\n",
		s.Interactions.Items, s.Interactions.Batches, s.Interactions.ItemsSucceeded, s.Interactions.ItemsFailed)
	if s.Indexed > 0 {
		b = fmt.Appendf(b, "Search:   %d catalog documents indexed\n", s.Indexed)
	}
	if s.Error != "" {
		b = fmt.Appendf(b, "Error:    %s\n", s.Error)
	}
	return string(b)
}
