package database

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
)

// NewElasticsearch builds a client and checks the cluster answers.
func NewElasticsearch(ctx context.Context, cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	addresses := cfg.Addresses
	if len(addresses) == 0 && cfg.URL != "" {
		addresses = []string{cfg.URL}
	}
	esCfg := elasticsearch.Config{Addresses: addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, apperrors.NewElasticsearchConnectionFailedError(fmt.Errorf("create client: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	res, err := es.Ping(es.Ping.WithContext(pingCtx))
	if err != nil {
		return nil, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperrors.NewElasticsearchConnectionFailedError(fmt.Errorf("ping: %s", res.Status()))
	}
	return es, nil
}
