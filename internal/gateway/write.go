package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/metrics"
	"movie-recommender/internal/ingest/formatter"
	"movie-recommender/internal/models"
)

const (
	KindItems        = "items"
	KindInteractions = "interactions"

	// maxLoggedRejections bounds per-entry warnings for one batch.
	maxLoggedRejections = 5
)

// WriteReport summarises a batched write. A failed batch counts all of its
// entries as failed; a partly accepted batch counts entries individually.
type WriteReport struct {
	Kind           string `json:"kind"`
	Batches        int    `json:"batches"`
	BatchesFailed  int    `json:"batches_failed"`
	Items          int    `json:"items"`
	ItemsSucceeded int    `json:"items_succeeded"`
	ItemsFailed    int    `json:"items_failed"`
}

// Complete reports whether every entry was accepted.
func (r WriteReport) Complete() bool {
	return r.BatchesFailed == 0 && r.ItemsFailed == 0
}

type batchRequest struct {
	Method string      `json:"method"`
	Path   string      `json:"path"`
	Params interface{} `json:"params,omitempty"`
}

type batchEnvelope struct {
	Requests []batchRequest `json:"requests"`
}

type batchResult struct {
	Code int             `json:"code"`
	JSON json.RawMessage `json:"json"`
}

type itemParams struct {
	models.ItemValues
	CascadeCreate bool `json:"!cascadeCreate"`
}

type userParams struct {
	models.UserValues
	CascadeCreate bool `json:"!cascadeCreate"`
}

type ratingParams struct {
	models.InteractionPayload
	CascadeCreate bool `json:"cascadeCreate"`
}

type viewParams struct {
	UserID        string `json:"userId"`
	ItemID        string `json:"itemId"`
	Timestamp     *int64 `json:"timestamp,omitempty"`
	CascadeCreate bool   `json:"cascadeCreate"`
}

// UpsertItems sends item batches in order. Rejected entries and failed
// batches are logged and counted; only fatal errors stop the run and are
// returned together with the report so far.
func (g *Gateway) UpsertItems(ctx context.Context, batches [][]models.ItemPayload) (WriteReport, error) {
	rep := WriteReport{Kind: KindItems}
	if !g.configured {
		return rep, g.unconfigured()
	}
	for i, batch := range batches {
		reqs := make([]batchRequest, len(batch))
		for j, item := range batch {
			reqs[j] = batchRequest{
				Method: http.MethodPost,
				Path:   "/items/" + url.PathEscape(item.ItemID),
				Params: itemParams{ItemValues: item.Values, CascadeCreate: true},
			}
		}
		if err := g.sendBatch(ctx, &rep, i, len(batches), reqs); err != nil {
			return rep, err
		}
	}
	g.logReport(rep)
	return rep, nil
}

// UpsertInteractions sends rating batches in order with the same failure
// policy as UpsertItems.
func (g *Gateway) UpsertInteractions(ctx context.Context, batches [][]models.InteractionPayload) (WriteReport, error) {
	rep := WriteReport{Kind: KindInteractions}
	if !g.configured {
		return rep, g.unconfigured()
	}
	for i, batch := range batches {
		reqs := make([]batchRequest, len(batch))
		for j, r := range batch {
			reqs[j] = batchRequest{
				Method: http.MethodPost,
				Path:   "/ratings/",
				Params: ratingParams{InteractionPayload: r, CascadeCreate: true},
			}
		}
		if err := g.sendBatch(ctx, &rep, i, len(batches), reqs); err != nil {
			return rep, err
		}
	}
	g.logReport(rep)
	return rep, nil
}

func (g *Gateway) sendBatch(ctx context.Context, rep *WriteReport, index, total int, reqs []batchRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for batch slot: %w", err)
	}

	rep.Batches++
	rep.Items += len(reqs)
	fields := map[string]interface{}{
		"kind":  rep.Kind,
		"batch": index + 1,
		"of":    total,
		"size":  len(reqs),
	}

	body, _, err := g.call(ctx, "batch", http.MethodPost, "/batch/", nil, batchEnvelope{Requests: reqs})
	if err == nil {
		var results []batchResult
		if decodeErr := json.Unmarshal(body, &results); decodeErr != nil {
			err = apperrors.NewServiceRequestFailedError("batch", fmt.Errorf("decode batch response: %w", decodeErr))
		} else if len(results) != len(reqs) {
			err = apperrors.NewServiceRequestFailedError("batch", fmt.Errorf("batch response has %d results for %d requests", len(results), len(reqs)))
		} else {
			g.countResults(ctx, rep, results, reqs, fields)
			return nil
		}
	}

	if apperrors.IsFatal(err) {
		g.logger.Error("batch aborted", withErr(fields, err))
		return err
	}
	rep.BatchesFailed++
	rep.ItemsFailed += len(reqs)
	metrics.GatewayBatches.WithLabelValues(rep.Kind, "failed").Inc()
	metrics.GatewayItems.WithLabelValues(rep.Kind, "failed").Add(float64(len(reqs)))
	g.obs.RecordBatch(ctx, rep.Kind, "failed")
	g.logger.Warn("batch failed, continuing with next batch", withErr(fields, err))
	return nil
}

func (g *Gateway) countResults(ctx context.Context, rep *WriteReport, results []batchResult, reqs []batchRequest, fields map[string]interface{}) {
	ok, failed := 0, 0
	for i, res := range results {
		if res.Code >= 200 && res.Code < 300 {
			ok++
			continue
		}
		failed++
		if failed <= maxLoggedRejections {
			g.logger.Warn("batch entry rejected", map[string]interface{}{
				"kind":  rep.Kind,
				"batch": fields["batch"],
				"entry": i,
				"path":  reqs[i].Path,
				"code":  res.Code,
				"body":  string(limitBody(res.JSON)),
			})
		}
	}
	rep.ItemsSucceeded += ok
	rep.ItemsFailed += failed

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	metrics.GatewayBatches.WithLabelValues(rep.Kind, outcome).Inc()
	metrics.GatewayItems.WithLabelValues(rep.Kind, "ok").Add(float64(ok))
	metrics.GatewayItems.WithLabelValues(rep.Kind, "failed").Add(float64(failed))
	g.obs.RecordBatch(ctx, rep.Kind, outcome)

	fields["accepted"] = ok
	fields["rejected"] = failed
	g.logger.Info("batch sent", fields)
}

func (g *Gateway) logReport(rep WriteReport) {
	fields := map[string]interface{}{
		"kind":           rep.Kind,
		"batches":        rep.Batches,
		"batchesFailed":  rep.BatchesFailed,
		"items":          rep.Items,
		"itemsSucceeded": rep.ItemsSucceeded,
		"itemsFailed":    rep.ItemsFailed,
	}
	if rep.Complete() {
		g.logger.Info("batched write finished", fields)
		return
	}
	g.logger.Warn("batched write finished with failures", fields)
}

// RecordRating stores one rating given on the 1-5 scale. The user and
// item are created if they do not exist yet.
func (g *Gateway) RecordRating(ctx context.Context, userID, movieID string, rating float64, timestamp *int64) error {
	params := ratingParams{
		InteractionPayload: models.InteractionPayload{
			UserID:    userID,
			ItemID:    movieID,
			Rating:    formatter.RescaleRating(rating),
			Timestamp: timestamp,
		},
		CascadeCreate: true,
	}
	_, _, err := g.call(ctx, "add_rating", http.MethodPost, "/ratings/", nil, params)
	return err
}

// RecordView stores a detail view.
func (g *Gateway) RecordView(ctx context.Context, userID, movieID string, timestamp *int64) error {
	params := viewParams{UserID: userID, ItemID: movieID, Timestamp: timestamp, CascadeCreate: true}
	_, _, err := g.call(ctx, "add_detail_view", http.MethodPost, "/detailviews/", nil, params)
	return err
}

// CreateUser creates or updates a user with declared preferences.
func (g *Gateway) CreateUser(ctx context.Context, userID string, values models.UserValues) error {
	params := userParams{UserValues: values, CascadeCreate: true}
	_, _, err := g.call(ctx, "set_user_values", http.MethodPost, "/users/"+url.PathEscape(userID), nil, params)
	return err
}

// ResetDatabase deletes every item, user and interaction.
func (g *Gateway) ResetDatabase(ctx context.Context) error {
	_, _, err := g.call(ctx, "reset_database", http.MethodDelete, "/", nil, nil)
	if err == nil {
		g.logger.Warn("recommendation database reset", nil)
	}
	return err
}

func withErr(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err
	return out
}
