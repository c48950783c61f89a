package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over
// it, applies environment overrides and defaults, and validates the result.
// A missing base file is not an error: defaults plus environment are enough
// to run in demo mode.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads a single YAML file, skipping the search path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			// unset variables expand to "", leaving optional stores disabled
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// applyEnvOverrides maps the short variable names used in deployment
// manifests. These win over file values.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("RECOMBEE_DATABASE_ID"); val != "" {
		cfg.Recommender.DatabaseID = val
	}
	if val := os.Getenv("RECOMBEE_PRIVATE_TOKEN"); val != "" {
		cfg.Recommender.PrivateToken = val
	}
	if val := os.Getenv("RECOMBEE_REGION"); val != "" {
		cfg.Recommender.Region = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		cfg.Dataset.Dir = val
	}
	if val := os.Getenv("HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "movie-recommender"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RateLimitRequests == 0 {
		cfg.Server.RateLimitRequests = 100
	}
	if cfg.Server.RateLimitWindow == 0 {
		cfg.Server.RateLimitWindow = 60000
	}

	// Recommender defaults
	if cfg.Recommender.DatabaseID == "" {
		cfg.Recommender.DatabaseID = PlaceholderDatabaseID
	}
	if cfg.Recommender.PrivateToken == "" {
		cfg.Recommender.PrivateToken = PlaceholderPrivateToken
	}
	if cfg.Recommender.Region == "" {
		cfg.Recommender.Region = "eu-west"
	}
	if cfg.Recommender.Timeout == 0 {
		cfg.Recommender.Timeout = 30000
	}
	if cfg.Recommender.BatchesPerSecond == 0 {
		cfg.Recommender.BatchesPerSecond = 5
	}
	if cfg.Recommender.Breaker.MaxRequests == 0 {
		cfg.Recommender.Breaker.MaxRequests = 1
	}
	if cfg.Recommender.Breaker.Interval == 0 {
		cfg.Recommender.Breaker.Interval = 60000
	}
	if cfg.Recommender.Breaker.Timeout == 0 {
		cfg.Recommender.Breaker.Timeout = 30000
	}
	if cfg.Recommender.Breaker.FailureThreshold == 0 {
		cfg.Recommender.Breaker.FailureThreshold = 5
	}

	// Dataset defaults
	if cfg.Dataset.Dir == "" {
		cfg.Dataset.Dir = "dataset"
	}
	if cfg.Dataset.MoviesFile == "" {
		cfg.Dataset.MoviesFile = "movies_metadata.csv"
	}
	if cfg.Dataset.KeywordsFile == "" {
		cfg.Dataset.KeywordsFile = "keywords.csv"
	}
	if cfg.Dataset.CreditsFile == "" {
		cfg.Dataset.CreditsFile = "credits.csv"
	}
	if cfg.Dataset.RatingsFile == "" {
		cfg.Dataset.RatingsFile = "ratings_small.csv"
	}

	// Recommendation defaults
	if cfg.Recommendations.DefaultCount == 0 {
		cfg.Recommendations.DefaultCount = 10
	}
	if cfg.Recommendations.PopularCount == 0 {
		cfg.Recommendations.PopularCount = 20
	}
	if cfg.Recommendations.SimilarCount == 0 {
		cfg.Recommendations.SimilarCount = 6
	}
	if cfg.Recommendations.MinRatingForLike == 0 {
		cfg.Recommendations.MinRatingForLike = 3.5
	}
	if cfg.Recommendations.Diversity == 0 {
		cfg.Recommendations.Diversity = 0.3
	}
	if len(cfg.Recommendations.ColdStartGenres) == 0 {
		cfg.Recommendations.ColdStartGenres = append([]string(nil), DefaultColdStartGenres...)
	}
	if cfg.Recommendations.ProfileCacheTTL == 0 {
		cfg.Recommendations.ProfileCacheTTL = 600000
	}

	// Ingestion defaults
	if cfg.Ingestion.MovieBatchSize == 0 {
		cfg.Ingestion.MovieBatchSize = 500
	}
	if cfg.Ingestion.RatingBatchSize == 0 {
		cfg.Ingestion.RatingBatchSize = 1000
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL != "" {
		cfg.Database.Elasticsearch.Addresses = []string{cfg.Database.Elasticsearch.URL}
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "movies"
	}

	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = "us-east-1"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 1
		}
		if worker.Timeout == 0 {
			worker.Timeout = 3600000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Ingestion.MovieBatchSize < 0 || cfg.Ingestion.RatingBatchSize < 0 {
		return fmt.Errorf("ingestion batch sizes must be positive")
	}
	if cfg.Recommendations.Diversity < 0 || cfg.Recommendations.Diversity > 1 {
		return fmt.Errorf("recommendations.diversity must be within [0,1], got %v", cfg.Recommendations.Diversity)
	}
	if cfg.Recommendations.MinRatingForLike < 1 || cfg.Recommendations.MinRatingForLike > 5 {
		return fmt.Errorf("recommendations.min_rating_for_like must be within [1,5], got %v", cfg.Recommendations.MinRatingForLike)
	}
	if cfg.Database.Postgres.Enabled() && cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required when database.postgres.host is set")
	}
	return nil
}

// GetWorkerConfig returns the named worker's settings or a disabled default.
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       false,
		MaxJobsActive: 1,
		Timeout:       3600000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	return GetWorkerConfig(cfg, workerName).Enabled
}
