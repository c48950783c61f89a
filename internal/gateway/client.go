// Package gateway is the only code that talks to the hosted recommendation
// service. It declares the property schema, streams batched writes,
// issues recommendation queries and reads back statistics.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	commonhttp "movie-recommender/internal/common/http"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/common/observability"
)

const maxErrorBody = 2048

// Gateway is safe for concurrent use.
type Gateway struct {
	databaseID string
	baseURL    string
	configured bool

	client  *commonhttp.Client
	signer  *signingTransport
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  logger.Logger
	obs     *observability.Observability
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithObservability attaches span and otel metric recording.
func WithObservability(obs *observability.Observability) Option {
	return func(g *Gateway) { g.obs = obs }
}

// WithClock replaces the signing clock. Tests use it to get stable URLs.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.signer.now = now }
}

// New builds a gateway. An unconfigured gateway is still usable: every
// operation fails fast with SERVICE_UNCONFIGURED without touching the
// network.
func New(cfg config.RecommenderConfig, log logger.Logger, opts ...Option) *Gateway {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.BatchesPerSecond > 0 {
		limit = rate.Limit(cfg.BatchesPerSecond)
	}

	signer := newSigningTransport(cfg.PrivateToken, nil)
	g := &Gateway{
		databaseID: cfg.DatabaseID,
		baseURL:    BaseURL(cfg.Region, cfg.BaseURL),
		configured: cfg.Configured(),
		client:     commonhttp.NewClientWithTransport(timeout, signer),
		signer:     signer,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     log.WithFields(map[string]interface{}{"component": "gateway"}),
	}
	g.breaker = newBreaker("recommendations", cfg.Breaker, g.logger)

	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BaseURL resolves the service host for a region. override wins when set.
func BaseURL(region, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "eu-west", "us-west", "ap-se":
		return "https://rapi-" + strings.ToLower(strings.TrimSpace(region)) + ".recombee.com"
	default:
		return "https://rapi.recombee.com"
	}
}

// Configured reports whether real credentials were supplied.
func (g *Gateway) Configured() bool { return g.configured }

func (g *Gateway) unconfigured() error {
	return apperrors.NewServiceUnconfiguredError("set RECOMBEE_DATABASE_ID and RECOMBEE_PRIVATE_TOKEN")
}

// call performs one signed request. It returns the response body and
// status. Non-2xx statuses come back as errors too, with the status kept
// so schema declaration can accept 409.
func (g *Gateway) call(ctx context.Context, op, method, endpoint string, query url.Values, body interface{}) ([]byte, int, error) {
	if !g.configured {
		return nil, 0, g.unconfigured()
	}

	ctx, span := g.obs.StartSpan(ctx, "recommender."+op,
		attribute.String("http.method", method),
		attribute.String("recommender.endpoint", endpoint),
	)
	respBody, status, err := g.roundTrip(ctx, op, method, endpoint, query, body)
	observability.EndSpan(span, err)
	return respBody, status, err
}

func (g *Gateway) roundTrip(ctx context.Context, op, method, endpoint string, query url.Values, body interface{}) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, apperrors.NewInternalError(fmt.Errorf("encode %s request: %w", op, err))
		}
		reader = bytes.NewReader(raw)
	}

	u := g.baseURL + "/" + url.PathEscape(g.databaseID) + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, apperrors.NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	elapsed := time.Since(start)
	metrics.GatewayRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())

	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, "error").Inc()
		g.obs.RecordCall(ctx, op, "error", elapsed)
		return nil, 0, g.transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, "error").Inc()
		return nil, resp.StatusCode, g.transportError(ctx, op, err)
	}

	status := fmt.Sprintf("%d", resp.StatusCode)
	metrics.GatewayRequests.WithLabelValues(op, status).Inc()
	g.obs.RecordCall(ctx, op, status, elapsed)

	return respBody, resp.StatusCode, classifyStatus(op, resp.StatusCode, respBody)
}

func classifyStatus(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.NewServiceAuthFailedError(status, string(limitBody(body)))
	default:
		return apperrors.NewServiceRejectedError(op, status, string(limitBody(body)))
	}
}

// transportError keeps caller cancellation recognisable and flattens
// client timeouts so they are not mistaken for it.
func (g *Gateway) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperrors.NewServiceTimeoutError(op, errors.New(err.Error()))
	}
	return apperrors.NewServiceRequestFailedError(op, errors.New(err.Error()))
}

func limitBody(b []byte) []byte {
	if len(b) > maxErrorBody {
		return b[:maxErrorBody]
	}
	return b
}
