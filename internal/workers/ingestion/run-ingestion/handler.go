// Package runingestion runs the catalog and ratings ingestion as a Zeebe
// job, so a BPMN process can schedule or chain it.
package runingestion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/observability"
	"movie-recommender/internal/ingest/pipeline"
)

const TaskType = "run-ingestion"

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Preflight(opts pipeline.Options) error
	Run(ctx context.Context, opts pipeline.Options) (pipeline.Summary, error)
}

type Handler struct {
	config *Config
	runner Runner
	errors *apperrors.ErrorHandler
	obs    *observability.Observability
	logger logger.Logger
}

func NewHandler(config *Config, runner Runner, obs *observability.Observability, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		runner: runner,
		errors: apperrors.NewErrorHandler(l),
		obs:    obs,
		logger: l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, start, apperrors.NewInvalidRequestError("parse input: "+err.Error()))
		return err
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, start, err)
		return err
	}

	h.completeJob(ctx, client, job, output)
	h.obs.RecordJobProcessed(ctx, "success")
	h.obs.RecordJobDuration(ctx, time.Since(start), "success")
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	opts := pipeline.Options{
		MoviesOnly:      input.MoviesOnly,
		RatingsOnly:     input.RatingsOnly,
		LimitMovies:     input.LimitMovies,
		LimitRatings:    input.LimitRatings,
		MovieBatchSize:  h.config.MovieBatchSize,
		RatingBatchSize: h.config.RatingBatchSize,
	}
	if input.Test {
		opts = opts.TestOptions()
	}
	if err := h.runner.Preflight(opts); err != nil {
		return nil, err
	}

	sum, err := h.runner.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Output{
		RunID:                 sum.RunID,
		Status:                sum.Status,
		MoviesFormatted:       sum.Movies.Output,
		RatingsFormatted:      sum.Ratings.Output,
		ItemsSucceeded:        sum.Items.ItemsSucceeded,
		ItemsFailed:           sum.Items.ItemsFailed,
		InteractionsSucceeded: sum.Interactions.ItemsSucceeded,
		InteractionsFailed:    sum.Interactions.ItemsFailed,
		Indexed:               sum.Indexed,
		DurationMs:            sum.Duration.Milliseconds(),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.WithoutCancel(ctx)); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	h.obs.RecordJobProcessed(ctx, "failure")
	h.obs.RecordJobDuration(ctx, time.Since(start), "failure")
	h.errors.HandleJobError(context.WithoutCancel(ctx), client, job, err)
}
