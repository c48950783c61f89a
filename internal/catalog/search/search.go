// Package search keeps the catalog in an Elasticsearch index for
// free-text movie search.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
	"movie-recommender/internal/models"
)

const (
	DefaultSize   = 20
	MaxSize       = 100
	bulkChunkSize = 500
)

// SearchFields are matched by Search, title weighted highest.
var SearchFields = []string{"title^3", "keywords^2", "overview", "genres", "director", "actors"}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "long"},
      "title":        {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "overview":     {"type": "text"},
      "genres":       {"type": "keyword"},
      "keywords":     {"type": "text"},
      "director":     {"type": "text"},
      "actors":       {"type": "text"},
      "release_date": {"type": "keyword"},
      "vote_average": {"type": "float"},
      "vote_count":   {"type": "long"},
      "runtime":      {"type": "integer"},
      "poster_path":  {"type": "keyword", "index": false}
    }
  }
}`

type Index struct {
	client *elasticsearch.Client
	name   string
	logger logger.Logger
}

func New(client *elasticsearch.Client, name string, log logger.Logger) *Index {
	if name == "" {
		name = "movies"
	}
	return &Index{
		client: client,
		name:   name,
		logger: log.WithFields(map[string]interface{}{"component": "search", "index": name}),
	}
}

// EnsureIndex creates the index with its mapping when absent.
func (ix *Index) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{ix.name}}.Do(ctx, ix.client)
	if err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(err)
	}
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return apperrors.NewSearchQueryFailedError("index_exists", fmt.Errorf("unexpected status %s", res.Status()))
	}

	res, err = esapi.IndicesCreateRequest{Index: ix.name, Body: strings.NewReader(indexMapping)}.Do(ctx, ix.client)
	if err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another writer may have created it meanwhile.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return apperrors.NewSearchQueryFailedError("create_index", fmt.Errorf("%s: %s", res.Status(), body))
	}
	ix.logger.Info("search index created", nil)
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

// IndexMovies upserts movies by id and returns how many documents were
// accepted. Rejected documents are logged, not returned as an error.
func (ix *Index) IndexMovies(ctx context.Context, movies []models.MovieRecord) (int, error) {
	if err := ix.EnsureIndex(ctx); err != nil {
		return 0, err
	}
	indexed := 0
	for start := 0; start < len(movies); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(movies) {
			end = len(movies)
		}
		n, err := ix.bulk(ctx, movies[start:end])
		indexed += n
		if err != nil {
			return indexed, err
		}
	}
	ix.logger.Info("catalog indexed", map[string]interface{}{"documents": indexed, "movies": len(movies)})
	return indexed, nil
}

func (ix *Index) bulk(ctx context.Context, movies []models.MovieRecord) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range movies {
		meta := map[string]map[string]string{"index": {"_id": strconv.FormatInt(m.ID, 10)}}
		if err := enc.Encode(meta); err != nil {
			return 0, err
		}
		if err := enc.Encode(m); err != nil {
			return 0, err
		}
	}

	res, err := esapi.BulkRequest{Index: ix.name, Body: &buf}.Do(ctx, ix.client)
	if err != nil {
		return 0, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, apperrors.NewSearchQueryFailedError("bulk", fmt.Errorf("%s: %s", res.Status(), body))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return 0, apperrors.NewSearchQueryFailedError("bulk", err)
	}
	ok := 0
	for _, item := range br.Items {
		for _, r := range item {
			if r.Status >= 200 && r.Status < 300 {
				ok++
				continue
			}
			ix.logger.Warn("document rejected", map[string]interface{}{
				"id":     r.ID,
				"status": r.Status,
				"error":  string(r.Error),
			})
		}
	}
	return ok, nil
}

// Result is one page of search hits.
type Result struct {
	Movies    []models.MovieSummary `json:"movies"`
	TotalHits int64                 `json:"total_hits"`
	Took      int64                 `json:"took_ms"`
}

// Search runs a best_fields multi_match over SearchFields.
func (ix *Index) Search(ctx context.Context, query string, size int) (Result, error) {
	out := Result{Movies: []models.MovieSummary{}}
	query = strings.TrimSpace(query)
	if query == "" {
		return out, nil
	}
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    SearchFields,
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return out, err
	}

	from := 0
	res, err := esapi.SearchRequest{
		Index: []string{ix.name},
		Body:  bytes.NewReader(data),
		From:  &from,
		Size:  &size,
	}.Do(ctx, ix.client)
	if err != nil {
		return out, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return out, apperrors.NewSearchQueryFailedError("multi_match", fmt.Errorf("%s: %s", res.Status(), b))
	}

	var r struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.MovieRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return out, apperrors.NewSearchQueryFailedError("multi_match", err)
	}
	for _, h := range r.Hits.Hits {
		out.Movies = append(out.Movies, h.Source.Summary())
	}
	out.TotalHits = r.Hits.Total.Value
	out.Took = r.Took
	return out, nil
}
