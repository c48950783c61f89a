package runingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/observability"
	"movie-recommender/internal/gateway"
	"movie-recommender/internal/ingest/formatter"
	"movie-recommender/internal/ingest/pipeline"
)

type fakeRunner struct {
	preflightErr error
	runErr       error
	summary      pipeline.Summary
	got          pipeline.Options
	ran          bool
}

func (f *fakeRunner) Preflight(opts pipeline.Options) error {
	f.got = opts
	return f.preflightErr
}

func (f *fakeRunner) Run(_ context.Context, opts pipeline.Options) (pipeline.Summary, error) {
	f.ran = true
	f.got = opts
	return f.summary, f.runErr
}

func newTestHandler(t *testing.T, runner Runner) *Handler {
	t.Helper()
	cfg := &Config{Timeout: 5 * time.Second, MovieBatchSize: 100, RatingBatchSize: 1000}
	return NewHandler(cfg, runner, observability.NewNoop(), logger.NewTestLogger(t))
}

func TestExecute_Success(t *testing.T) {
	runner := &fakeRunner{summary: pipeline.Summary{
		RunID:        "run-1",
		Status:       "completed",
		Movies:       formatter.FormatReport{Input: 3, Output: 3},
		Ratings:      formatter.FormatReport{Input: 10, Output: 9},
		Items:        gateway.WriteReport{Items: 3, ItemsSucceeded: 3},
		Interactions: gateway.WriteReport{Items: 9, ItemsSucceeded: 8, ItemsFailed: 1},
		Indexed:      3,
		Duration:     1500 * time.Millisecond,
	}}
	h := newTestHandler(t, runner)

	out, err := h.execute(context.Background(), &Input{LimitMovies: 50})
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, 3, out.MoviesFormatted)
	assert.Equal(t, 9, out.RatingsFormatted)
	assert.Equal(t, 8, out.InteractionsSucceeded)
	assert.Equal(t, 1, out.InteractionsFailed)
	assert.Equal(t, 3, out.Indexed)
	assert.Equal(t, int64(1500), out.DurationMs)

	assert.Equal(t, 50, runner.got.LimitMovies)
	assert.Equal(t, 100, runner.got.MovieBatchSize)
	assert.Equal(t, 1000, runner.got.RatingBatchSize)
}

func TestExecute_JobVariablesCannotReset(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestHandler(t, runner)

	var input Input
	require.NoError(t, json.Unmarshal([]byte(`{"reset":true,"moviesOnly":true}`), &input))

	_, err := h.execute(context.Background(), &input)
	require.NoError(t, err)
	assert.True(t, runner.ran)
	assert.True(t, runner.got.MoviesOnly)
	assert.False(t, runner.got.Reset)
}

func TestExecute_TestModeLimits(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestHandler(t, runner)

	_, err := h.execute(context.Background(), &Input{Test: true, MoviesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, pipeline.TestMovieLimit, runner.got.LimitMovies)
	assert.Equal(t, pipeline.TestRatingLimit, runner.got.LimitRatings)
	assert.True(t, runner.got.MoviesOnly)
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		wantCode apperrors.ErrorCode
		wantRun  bool
	}{
		{
			name:     "preflight rejects",
			runner:   &fakeRunner{preflightErr: apperrors.NewServiceUnconfiguredError("missing credentials")},
			wantCode: apperrors.ErrCodeServiceUnconfigured,
		},
		{
			name:     "run aborts",
			runner:   &fakeRunner{runErr: apperrors.NewIngestionAbortedError("schema", errors.New("boom"))},
			wantCode: apperrors.ErrCodeIngestionAborted,
			wantRun:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.runner)
			out, err := h.execute(context.Background(), &Input{})
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.wantRun, tt.runner.ran)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg := &config.Config{
		Ingestion: config.IngestionConfig{MovieBatchSize: 10, RatingBatchSize: 20},
		Workers:   map[string]config.WorkerConfig{TaskType: {Enabled: true, Timeout: 120000}},
	}
	c := LoadConfig(cfg)
	assert.Equal(t, 2*time.Minute, c.Timeout)
	assert.Equal(t, 10, c.MovieBatchSize)

	assert.Equal(t, time.Hour, LoadConfig(&config.Config{}).Timeout)
}
