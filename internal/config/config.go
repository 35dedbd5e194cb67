// Package config provides unified configuration loading for AgriGuru.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service and CLI.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Source        SourceConfig        `yaml:"source"`
	LLM           LLMConfig           `yaml:"llm"`
	Resolution    ResolutionConfig    `yaml:"resolution"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// SourceConfig holds settings for the government open-data price API.
type SourceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	PageSize    int           `yaml:"page_size"`
	MaxPages    int           `yaml:"max_pages"`
	BatchSize   int           `yaml:"batch_size"`
	RateLimit   float64       `yaml:"rate_limit"` // requests per second, 0 disables
	NegativeTTL time.Duration `yaml:"negative_ttl"`
	// Upstream filter field names; the resource renamed them between versions.
	Fields SourceFields `yaml:"fields"`
	// CommodityVariants maps a spoken name to the name the upstream uses.
	CommodityVariants map[string]string `yaml:"commodity_variants"`
}

// SourceFields names the upstream filter keys.
type SourceFields struct {
	State       string `yaml:"state"`
	District    string `yaml:"district"`
	Market      string `yaml:"market"`
	Commodity   string `yaml:"commodity"`
	ArrivalDate string `yaml:"arrival_date"`
}

// LLMConfig holds settings for the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// ResolutionConfig holds price resolution settings.
type ResolutionConfig struct {
	HistoricalDays   int           `yaml:"historical_days"`
	NearbyRadiusKm   float64       `yaml:"nearby_radius_km"`
	NearbyMaxMarkets int           `yaml:"nearby_max_markets"`
	NearbyRecordCap  int           `yaml:"nearby_record_cap"`
	ResultLimit      int           `yaml:"result_limit"`
	OverallTimeout   time.Duration `yaml:"overall_timeout"`
	TrendDays        int           `yaml:"trend_days"`
	Matcher          MatcherConfig `yaml:"matcher"`
	CommodityAliases []AliasGroup  `yaml:"commodity_aliases"`
	Timezone         string        `yaml:"timezone"`
}

// MatcherConfig holds fuzzy matching thresholds.
type MatcherConfig struct {
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold"`
	SuggestThreshold    float64 `yaml:"suggest_threshold"`
	SignalConfidence    float64 `yaml:"signal_confidence"`
	AmbiguityMargin     float64 `yaml:"ambiguity_margin"`
	MaxSuggestions      int     `yaml:"max_suggestions"`
	LocationBonus       float64 `yaml:"location_bonus"`
}

// AliasGroup lists names that refer to the same commodity, in the order
// they should be tried.
type AliasGroup struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// IngestionConfig holds the daily sync settings.
type IngestionConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Commodities []string      `yaml:"commodities"`
	States      []string      `yaml:"states"`
	Concurrency int           `yaml:"concurrency"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// AuthConfig holds API-key authentication settings.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Database.Driver == "sqlite" && cfg.Database.SQLite.Path != ":memory:" {
			cfg.Database.SQLite.Path = ResolveRelativePath(path, cfg.Database.SQLite.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds a configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     45 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			CORSOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/agriguru.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
				Prefix:   "agriguru",
			},
		},
		Source: SourceConfig{
			BaseURL:     "https://api.data.gov.in/resource/9ef84268-d588-465a-a308-a864a43d0070",
			Timeout:     15 * time.Second,
			PageSize:    500,
			MaxPages:    4,
			BatchSize:   7,
			NegativeTTL: 6 * time.Hour,
			Fields: SourceFields{
				State:       "state.keyword",
				District:    "district",
				Market:      "market",
				Commodity:   "commodity",
				ArrivalDate: "arrival_date",
			},
			CommodityVariants: map[string]string{
				"paddy":     "Paddy(Dhan)(Common)",
				"chilli":    "Dry Chillies",
				"groundnut": "Groundnut",
				"tur":       "Arhar (Tur/Red Gram)(Whole)",
			},
		},
		LLM: LLMConfig{
			Enabled:   true,
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			Timeout:   10 * time.Second,
			RateLimit: 3,
			Burst:     5,
			CacheTTL:  24 * time.Hour,
		},
		Resolution: ResolutionConfig{
			HistoricalDays:   14,
			NearbyRadiusKm:   100,
			NearbyMaxMarkets: 8,
			NearbyRecordCap:  10,
			ResultLimit:      50,
			OverallTimeout:   35 * time.Second,
			TrendDays:        30,
			Timezone:         "Asia/Kolkata",
			Matcher: MatcherConfig{
				AutoAcceptThreshold: 0.75,
				SuggestThreshold:    0.5,
				SignalConfidence:    0.8,
				AmbiguityMargin:     0.1,
				MaxSuggestions:      3,
				LocationBonus:       0.1,
			},
			CommodityAliases: DefaultCommodityAliases(),
		},
		Ingestion: IngestionConfig{
			Enabled:     false,
			Interval:    6 * time.Hour,
			Commodities: []string{"Tomato", "Onion", "Potato", "Cotton", "Paddy(Dhan)(Common)", "Groundnut", "Dry Chillies", "Maize"},
			States:      []string{"Andhra Pradesh", "Karnataka", "Telangana"},
			Concurrency: 4,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "agriguru",
		},
	}
}

// DefaultCommodityAliases returns the built-in commodity alias groups.
func DefaultCommodityAliases() []AliasGroup {
	return []AliasGroup{
		{Canonical: "Paddy(Dhan)(Common)", Aliases: []string{"Paddy", "Paddy(Dhan)(Basmati)", "Rice"}},
		{Canonical: "Cotton", Aliases: []string{"Kapas"}},
		{Canonical: "Dry Chillies", Aliases: []string{"Chilli", "Red Chilli", "Green Chilli"}},
		{Canonical: "Groundnut", Aliases: []string{"Groundnut pods (raw)", "Peanut"}},
		{Canonical: "Arhar (Tur/Red Gram)(Whole)", Aliases: []string{"Tur", "Red Gram", "Arhar"}},
		{Canonical: "Bengal Gram(Gram)(Whole)", Aliases: []string{"Bengal Gram", "Chana"}},
		{Canonical: "Maize", Aliases: []string{"Corn"}},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires database.postgres.dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Source.Timeout < 10*time.Second || c.Source.Timeout > 15*time.Second {
		return fmt.Errorf("source.timeout must be between 10s and 15s, got %s", c.Source.Timeout)
	}

	if c.Source.BatchSize < 5 || c.Source.BatchSize > 7 {
		return fmt.Errorf("source.batch_size must be between 5 and 7, got %d", c.Source.BatchSize)
	}

	if c.Source.PageSize < 1 {
		return fmt.Errorf("source.page_size must be positive")
	}

	r := c.Resolution
	if r.OverallTimeout < 30*time.Second || r.OverallTimeout > 40*time.Second {
		return fmt.Errorf("resolution.overall_timeout must be between 30s and 40s, got %s", r.OverallTimeout)
	}

	if r.HistoricalDays < 1 || r.HistoricalDays > 90 {
		return fmt.Errorf("resolution.historical_days must be between 1 and 90")
	}

	if r.NearbyRadiusKm <= 0 {
		return fmt.Errorf("resolution.nearby_radius_km must be positive")
	}

	if r.NearbyRecordCap < 1 {
		return fmt.Errorf("resolution.nearby_record_cap must be positive")
	}

	m := r.Matcher
	if m.AutoAcceptThreshold <= 0 || m.AutoAcceptThreshold > 1 {
		return fmt.Errorf("matcher.auto_accept_threshold must be in (0, 1]")
	}
	if m.SuggestThreshold <= 0 || m.SuggestThreshold >= m.AutoAcceptThreshold {
		return fmt.Errorf("matcher.suggest_threshold must be positive and below auto_accept_threshold")
	}
	if m.SignalConfidence <= 0 || m.SignalConfidence > 1 {
		return fmt.Errorf("matcher.signal_confidence must be in (0, 1]")
	}

	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("invalid resolution.timezone %q: %w", r.Timezone, err)
	}

	if c.Ingestion.Enabled && c.Ingestion.Interval < time.Minute {
		return fmt.Errorf("ingestion.interval must be at least 1m")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth enabled but no api_keys configured")
	}

	return nil
}

// Location returns the time zone used to decide what "today" means.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Resolution.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("PORT", "SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("DATA_GOV_API_KEY"); v != "" {
		cfg.Source.APIKey = v
	}

	if v := os.Getenv("DATA_GOV_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}

	if v := firstEnv("LLM_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("HISTORICAL_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Resolution.HistoricalDays = days
		}
	}

	if v := os.Getenv("NEARBY_RADIUS_KM"); v != "" {
		if km, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Resolution.NearbyRadiusKm = km
		}
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKeys = splitList(v)
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
