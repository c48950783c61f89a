package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
)

// NewRedis connects and pings. The caller owns Close.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, apperrors.NewCacheFailedError("connect", err)
	}
	return rdb, nil
}
