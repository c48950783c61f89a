package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/models"
)

const (
	profileKeyPrefix  = "profile:"
	declaredKeyPrefix = "declared:"
)

// Declared is what a user chose at registration.
type Declared struct {
	UserID             string   `json:"user_id"`
	PreferredGenres    []string `json:"preferred_genres"`
	PreferredDirectors []string `json:"preferred_directors"`
	RegisteredAt       int64    `json:"registered_at"`
}

// Cache stores derived profiles with a TTL and declared preferences
// without one.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: rdb, ttl: ttl}
}

// Get returns ok=false on a miss.
func (c *Cache) Get(ctx context.Context, userID string) (models.UserPreferenceProfile, bool, error) {
	var p models.UserPreferenceProfile
	ok, err := c.getJSON(ctx, profileKeyPrefix+userID, &p)
	return p, ok, err
}

func (c *Cache) Put(ctx context.Context, p models.UserPreferenceProfile) error {
	return c.setJSON(ctx, profileKeyPrefix+p.UserID, p, c.ttl)
}

func (c *Cache) GetDeclared(ctx context.Context, userID string) (Declared, bool, error) {
	var d Declared
	ok, err := c.getJSON(ctx, declaredKeyPrefix+userID, &d)
	return d, ok, err
}

func (c *Cache) PutDeclared(ctx context.Context, d Declared) error {
	return c.setJSON(ctx, declaredKeyPrefix+d.UserID, d, 0)
}

func (c *Cache) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewCacheFailedError("get", err)
	}
	if err := json.Unmarshal([]byte(val), v); err != nil {
		return false, apperrors.NewCacheFailedError("decode", err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return apperrors.NewCacheFailedError("set", err)
	}
	return nil
}
