// Package database opens the optional backing stores: Postgres for the
// ingestion run ledger, Redis for preference profiles and Elasticsearch
// for catalog search.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
)

const pingTimeout = 5 * time.Second

// NewPostgres opens and pings a pooled connection.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionFailedError(fmt.Errorf("open postgres: %w", err))
	}

	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseConnectionFailedError(fmt.Errorf("ping postgres at %s:%d: %w", cfg.Host, cfg.Port, err))
	}
	return db, nil
}
