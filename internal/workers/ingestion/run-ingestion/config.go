package runingestion

import (
	"time"

	"movie-recommender/internal/common/config"
)

type Config struct {
	Timeout         time.Duration
	MovieBatchSize  int
	RatingBatchSize int
}

// LoadConfig reads the worker section, falling back to a one hour budget:
// a full ratings run streams tens of thousands of batches.
func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:         time.Hour,
		MovieBatchSize:  cfg.Ingestion.MovieBatchSize,
		RatingBatchSize: cfg.Ingestion.RatingBatchSize,
	}
	if wc, ok := cfg.Workers[TaskType]; ok && wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
