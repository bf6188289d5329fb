package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig    `json:"database" mapstructure:"database"`
	Redis       RedisConfig       `json:"redis" mapstructure:"redis"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	Recompute   RecomputeConfig   `json:"recompute" mapstructure:"recompute"`
	Publication PublicationConfig `json:"publication" mapstructure:"publication"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL      string `json:"url" mapstructure:"url"` // takes precedence over the discrete fields
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"ssl_mode" mapstructure:"ssl_mode"`
	MaxConns int    `json:"max_conns" mapstructure:"max_conns"`
	MinConns int    `json:"min_conns" mapstructure:"min_conns"`
}

// DSN returns a postgres:// connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type LoggingConfig struct {
	Level       string `json:"level" mapstructure:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" mapstructure:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" mapstructure:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" mapstructure:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port" mapstructure:"port"`
	Host            string `json:"host" mapstructure:"host"`
	AllowedOrigins  string `json:"allowed_origins" mapstructure:"allowed_origins"`   // CORS allowed origins, comma separated
	ReadTimeout     int    `json:"read_timeout" mapstructure:"read_timeout"`         // Seconds
	WriteTimeout    int    `json:"write_timeout" mapstructure:"write_timeout"`       // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // Seconds
}

// RedisConfig holds Redis configuration for chart caches and the report queue
type RedisConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Address  string `json:"address" mapstructure:"address"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	PoolSize int    `json:"pool_size" mapstructure:"pool_size"`
}

// RecomputeConfig controls the retry envelope and batch parallelism
type RecomputeConfig struct {
	MaxAttempts    int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" mapstructure:"max_backoff"`
	Concurrency    int           `json:"concurrency" mapstructure:"concurrency"`         // companies recomputed in parallel
	ReconcileLimit int           `json:"reconcile_limit" mapstructure:"reconcile_limit"` // failure records per reconcile run
}

// PublicationConfig controls publication side effects
type PublicationConfig struct {
	ChartCategories []string      `json:"chart_categories" mapstructure:"chart_categories"`
	ReportQueue     string        `json:"report_queue" mapstructure:"report_queue"`
	SeriesCacheTTL  time.Duration `json:"series_cache_ttl" mapstructure:"series_cache_ttl"`
}

// env keys bound to config keys
var envBindings = map[string]string{
	"database.url":      "DATABASE_URL",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.database": "DB_NAME",
	"database.ssl_mode": "DB_SSLMODE",

	"redis.enabled":  "REDIS_ENABLED",
	"redis.address":  "REDIS_ADDRESS",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"logging.level":       "LOG_LEVEL",
	"logging.output":      "LOG_OUTPUT",
	"logging.json_format": "LOG_JSON",

	"server.port":            "SERVER_PORT",
	"server.host":            "SERVER_HOST",
	"server.allowed_origins": "CORS_ALLOWED_ORIGINS",

	"recompute.max_attempts":    "RECOMPUTE_MAX_ATTEMPTS",
	"recompute.initial_backoff": "RECOMPUTE_INITIAL_BACKOFF",
	"recompute.max_backoff":     "RECOMPUTE_MAX_BACKOFF",
	"recompute.concurrency":     "RECOMPUTE_CONCURRENCY",

	"publication.chart_categories": "CHART_CATEGORIES",
	"publication.report_queue":     "REPORT_QUEUE",
	"publication.series_cache_ttl": "SERIES_CACHE_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "financial_diagnostics")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.json_format", true)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 10)

	v.SetDefault("recompute.max_attempts", 3)
	v.SetDefault("recompute.initial_backoff", 500*time.Millisecond)
	v.SetDefault("recompute.max_backoff", 10*time.Second)
	v.SetDefault("recompute.concurrency", 4)
	v.SetDefault("recompute.reconcile_limit", 100)

	v.SetDefault("publication.chart_categories", []string{"profitability", "liquidity", "leverage", "activity", "bankruptcy"})
	v.SetDefault("publication.report_queue", "reports:regenerate")
	v.SetDefault("publication.series_cache_ttl", 10*time.Minute)
}

// Load reads .env, then config.json, then environment overrides.
func Load() (*Config, error) {
	return LoadFile("config.json")
}

// LoadFile is Load with an explicit config file path. A missing file is not
// an error.
func LoadFile(path string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// CHART_CATEGORIES arrives as a comma separated string
	cfg.Publication.ChartCategories = splitList(strings.Join(cfg.Publication.ChartCategories, ","))

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Origins splits the CORS origin list.
func (c ServerConfig) Origins() []string {
	return splitList(c.AllowedOrigins)
}
