package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: recommender-test\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "recommender-test", cfg.App.Name)
	assert.Equal(t, 5001, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:5001", cfg.Server.Addr())
	assert.Equal(t, "eu-west", cfg.Recommender.Region)
	assert.False(t, cfg.Recommender.Configured())
	assert.Equal(t, 10, cfg.Recommendations.DefaultCount)
	assert.Equal(t, 20, cfg.Recommendations.PopularCount)
	assert.Equal(t, 6, cfg.Recommendations.SimilarCount)
	assert.Equal(t, 3.5, cfg.Recommendations.MinRatingForLike)
	assert.Len(t, cfg.Recommendations.ColdStartGenres, 18)
	assert.Equal(t, 500, cfg.Ingestion.MovieBatchSize)
	assert.Equal(t, 1000, cfg.Ingestion.RatingBatchSize)
	assert.Equal(t, filepath.Join("dataset", "movies_metadata.csv"), cfg.Dataset.MoviesPath())
	assert.Equal(t, filepath.Join("dataset", "ratings_small.csv"), cfg.Dataset.RatingsPath())
	assert.False(t, cfg.Database.Postgres.Enabled())
	assert.False(t, cfg.Database.Redis.Enabled())
	assert.False(t, cfg.Database.Elasticsearch.Enabled())
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("RECOMBEE_DATABASE_ID", "movies-prod")
	t.Setenv("RECOMBEE_PRIVATE_TOKEN", "secret-token")
	t.Setenv("DATA_DIR", "/data/tmdb")
	t.Setenv("PORT", "8088")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	path := writeConfig(t, `
recommender:
  database_id: your-database-id
  region: us-west
database:
  redis:
    address: ${REDIS_ADDR}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "movies-prod", cfg.Recommender.DatabaseID)
	assert.Equal(t, "secret-token", cfg.Recommender.PrivateToken)
	assert.Equal(t, "us-west", cfg.Recommender.Region)
	assert.True(t, cfg.Recommender.Configured())
	assert.Equal(t, "/data/tmdb", cfg.Dataset.Dir)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Database.Redis.Address)
	assert.True(t, cfg.Database.Redis.Enabled())
}

func TestLoadFromFile_UnsetVariablesDisableStores(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: ${MOVIE_TEST_UNSET_DB_HOST}
  redis:
    address: ${MOVIE_TEST_UNSET_REDIS}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Database.Postgres.Enabled())
	assert.False(t, cfg.Database.Redis.Enabled())
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"bad diversity", "recommendations:\n  diversity: 1.5\n"},
		{"bad like threshold", "recommendations:\n  min_rating_for_like: 9\n"},
		{"postgres without database", "database:\n  postgres:\n    host: localhost\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRecommenderConfig_Configured(t *testing.T) {
	assert.False(t, RecommenderConfig{}.Configured())
	assert.False(t, RecommenderConfig{DatabaseID: "db", PrivateToken: PlaceholderPrivateToken}.Configured())
	assert.False(t, RecommenderConfig{DatabaseID: PlaceholderDatabaseID, PrivateToken: "tok"}.Configured())
	assert.True(t, RecommenderConfig{DatabaseID: "db", PrivateToken: "tok"}.Configured())
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"run-ingestion": {Enabled: true, MaxJobsActive: 1, Timeout: 1000},
	}}
	assert.True(t, IsWorkerEnabled(cfg, "run-ingestion"))
	assert.False(t, IsWorkerEnabled(cfg, "unknown"))
	assert.Equal(t, 1000, GetWorkerConfig(cfg, "run-ingestion").Timeout)
}
