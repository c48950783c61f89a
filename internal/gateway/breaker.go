package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
)

// newBreaker guards recommendation queries. Writes bypass it: batch jobs
// already skip failed batches and abort on fatal errors.
func newBreaker(name string, cfg config.BreakerConfig, log logger.Logger) *gobreaker.CircuitBreaker[[]byte] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.BreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    config.GetDuration(cfg.Interval),
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
			log.Warn("circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
}

// tripsBreaker reports whether err says the service is unhealthy. Caller
// cancellation and 4xx rejections other than 429 reflect the request, not
// the service, and do not count.
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	se, ok := apperrors.AsStandard(err)
	if !ok || se.Code != apperrors.ErrCodeServiceRejected {
		return true
	}
	status, _ := se.Metadata["status"].(int)
	return status >= 500 || status == http.StatusTooManyRequests
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
