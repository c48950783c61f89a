package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Placeholder credentials shipped in sample configs. A gateway configured
// with either value runs in demo mode.
const (
	PlaceholderDatabaseID   = "your-database-id"
	PlaceholderPrivateToken = "your-private-token"
)

// DefaultColdStartGenres is the genre taxonomy offered at registration.
var DefaultColdStartGenres = []string{
	"Action", "Adventure", "Animation", "Comedy", "Crime",
	"Documentary", "Drama", "Family", "Fantasy", "History",
	"Horror", "Music", "Mystery", "Romance", "Science Fiction",
	"Thriller", "War", "Western",
}

// Config is the main application configuration struct.
type Config struct {
	App             AppConfig               `mapstructure:"app"`
	Server          ServerConfig            `mapstructure:"server"`
	Recommender     RecommenderConfig       `mapstructure:"recommender"`
	Dataset         DatasetConfig           `mapstructure:"dataset"`
	Recommendations RecommendationsConfig   `mapstructure:"recommendations"`
	Ingestion       IngestionConfig         `mapstructure:"ingestion"`
	Camunda         CamundaConfig           `mapstructure:"camunda"`
	Database        DatabaseConfig          `mapstructure:"database"`
	Workers         map[string]WorkerConfig `mapstructure:"workers"`
	Logging         LoggingConfig           `mapstructure:"logging"`
	Notifications   NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host              string   `mapstructure:"host"`
	Port              int      `mapstructure:"port"`
	ReadTimeout       int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout      int      `mapstructure:"write_timeout"` // milliseconds
	CORSOrigins       []string `mapstructure:"cors_origins"`
	RateLimitRequests int      `mapstructure:"rate_limit_requests"`
	RateLimitWindow   int      `mapstructure:"rate_limit_window"` // milliseconds
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RecommenderConfig identifies the hosted recommendation service.
type RecommenderConfig struct {
	DatabaseID       string        `mapstructure:"database_id"`
	PrivateToken     string        `mapstructure:"private_token"`
	Region           string        `mapstructure:"region"`
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          int           `mapstructure:"timeout"` // milliseconds
	BatchesPerSecond float64       `mapstructure:"batches_per_second"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

// Configured reports whether real credentials are present.
func (r RecommenderConfig) Configured() bool {
	return r.DatabaseID != "" && r.PrivateToken != "" &&
		r.DatabaseID != PlaceholderDatabaseID && r.PrivateToken != PlaceholderPrivateToken
}

type BreakerConfig struct {
	MaxRequests      uint32 `mapstructure:"max_requests"`
	Interval         int    `mapstructure:"interval"` // milliseconds
	Timeout          int    `mapstructure:"timeout"`  // milliseconds
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
}

// DatasetConfig locates the four CSV exports.
type DatasetConfig struct {
	Dir          string `mapstructure:"dir"`
	MoviesFile   string `mapstructure:"movies_file"`
	KeywordsFile string `mapstructure:"keywords_file"`
	CreditsFile  string `mapstructure:"credits_file"`
	RatingsFile  string `mapstructure:"ratings_file"`
}

func (d DatasetConfig) MoviesPath() string   { return filepath.Join(d.Dir, d.MoviesFile) }
func (d DatasetConfig) KeywordsPath() string { return filepath.Join(d.Dir, d.KeywordsFile) }
func (d DatasetConfig) CreditsPath() string  { return filepath.Join(d.Dir, d.CreditsFile) }
func (d DatasetConfig) RatingsPath() string  { return filepath.Join(d.Dir, d.RatingsFile) }

type RecommendationsConfig struct {
	DefaultCount     int      `mapstructure:"default_count"`
	PopularCount     int      `mapstructure:"popular_count"`
	SimilarCount     int      `mapstructure:"similar_count"`
	MinRatingForLike float64  `mapstructure:"min_rating_for_like"`
	Diversity        float64  `mapstructure:"diversity"`
	ColdStartGenres  []string `mapstructure:"cold_start_genres"`
	ProfileCacheTTL  int      `mapstructure:"profile_cache_ttl"` // milliseconds
}

type IngestionConfig struct {
	MovieBatchSize  int  `mapstructure:"movie_batch_size"`
	RatingBatchSize int  `mapstructure:"rating_batch_size"`
	IndexCatalog    bool `mapstructure:"index_catalog"`
	Notify          bool `mapstructure:"notify"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// Enabled reports whether the run ledger should be used.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
	Index     string   `mapstructure:"index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

func (e ElasticsearchConfig) Enabled() bool { return e.GetURL() != "" }

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Address != "" }

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// NotificationConfig controls the ingestion summary sent at the end of a run.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts a millisecond setting.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
