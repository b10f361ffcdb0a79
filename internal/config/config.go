package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

// Output formats written after an export.
const (
	OutputFormatCSV  = "csv"
	OutputFormatJSON = "json"
	OutputFormatHTML = "html"
)

// OutputFormats lists every supported output format.
var OutputFormats = []string{OutputFormatCSV, OutputFormatJSON, OutputFormatHTML}

// Config holds the configuration for arrscore and its services.
type Config struct {
	// LogLevel is the default log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Database holds the database configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Radarr holds the configuration for the Radarr server.
	Radarr *ServiceConfig `yaml:"radarr" mapstructure:"radarr"`
	// Sonarr holds the configuration for the Sonarr server.
	Sonarr *ServiceConfig `yaml:"sonarr" mapstructure:"sonarr"`
	// Cache holds the API response cache configuration.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`
	// Export holds the export pipeline configuration.
	Export *ExportConfig `yaml:"export" mapstructure:"export"`
	// Analysis holds the analyzer thresholds.
	Analysis *AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	// Retry holds the retry policy for busy database writes.
	Retry *RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// ServiceConfig holds the connection settings of one *arr service.
type ServiceConfig struct {
	// Enabled controls whether the service is exported by scheduled runs.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// URL is the base URL of the service.
	URL string `yaml:"url" mapstructure:"url"`
	// APIKey is the API key of the service.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	// Path is the path to the SQLite database file.
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig holds the API response cache configuration.
type CacheConfig struct {
	// Enabled turns the response cache on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Type is the cache backend (memory or redis).
	Type CacheType `yaml:"type" mapstructure:"type"`
	// RedisURL is the address of the redis server.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	// TTL is how long cached responses stay valid.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ExportConfig holds the export pipeline configuration.
type ExportConfig struct {
	// OutputDir is where report files are written.
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	// Formats are the output formats written after each export.
	Formats []string `yaml:"formats" mapstructure:"formats"`
	// MaxWorkers bounds the number of concurrent item fetches.
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
	// RateLimit is the maximum number of API requests per second. 0 disables pacing.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	// BatchSize is the number of records stored per transaction.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// Analyze generates the health report after each export.
	Analyze bool `yaml:"analyze" mapstructure:"analyze"`
	// Schedule is the cron expression used by serve.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// AnalysisConfig holds the analyzer thresholds.
type AnalysisConfig struct {
	// MinScoreThreshold is the score at or below which files are considered for upgrades.
	MinScoreThreshold int `yaml:"min_score_threshold" mapstructure:"min_score_threshold"`
	// CandidateLimit caps the number of candidates printed by the CLI.
	CandidateLimit int `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	// TrendDays is the window of the historical analysis.
	TrendDays int `yaml:"trend_days" mapstructure:"trend_days"`
}

// RetryConfig holds the retry policy for busy database writes.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	Multiplier  float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it will use default search paths for config files.
// A missing config file is not an error, the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	// bind some weirdly unsupported nested env vars
	bindNestedEnv(v)

	// Set default values
	setDefaults(v)

	// Configure Viper
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ARRSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.arrscore")
		v.AddConfigPath("/etc/arrscore")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
		log.Debug("Some environment variables can be set with the ARRSCORE_ prefix to override config file values")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	sanitizeConfig(&c)

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("database.path", defaultDatabasePath())

	v.SetDefault("radarr.enabled", false)
	v.SetDefault("radarr.url", "")
	v.SetDefault("radarr.api_key", "")
	v.SetDefault("sonarr.enabled", false)
	v.SetDefault("sonarr.url", "")
	v.SetDefault("sonarr.api_key", "")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 60*time.Minute)

	v.SetDefault("export.output_dir", "./reports")
	v.SetDefault("export.formats", OutputFormats)
	v.SetDefault("export.max_workers", 20)
	v.SetDefault("export.rate_limit", 10)
	v.SetDefault("export.batch_size", 50)
	v.SetDefault("export.analyze", true)
	v.SetDefault("export.schedule", "0 3 * * *") // Daily at 03:00

	v.SetDefault("analysis.min_score_threshold", -50)
	v.SetDefault("analysis.candidate_limit", 20)
	v.SetDefault("analysis.trend_days", 30)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 100*time.Millisecond)
	v.SetDefault("retry.multiplier", 2.0)
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data/arrscore.db"
	}
	return filepath.Join(home, ".arrscore", "library.db")
}

func bindNestedEnv(v *viper.Viper) {
	// Radarr
	v.MustBindEnv("radarr.enabled", "ARRSCORE_RADARR_ENABLED")
	v.MustBindEnv("radarr.url", "ARRSCORE_RADARR_URL")
	v.MustBindEnv("radarr.api_key", "ARRSCORE_RADARR_API_KEY")

	// Sonarr
	v.MustBindEnv("sonarr.enabled", "ARRSCORE_SONARR_ENABLED")
	v.MustBindEnv("sonarr.url", "ARRSCORE_SONARR_URL")
	v.MustBindEnv("sonarr.api_key", "ARRSCORE_SONARR_API_KEY")

	// Cache
	v.MustBindEnv("cache.redis_url", "ARRSCORE_CACHE_REDIS_URL")
}

// validateConfig checks the loaded configuration. Whether any service is enabled
// is checked separately, since single exports take the connection from flags.
func validateConfig(c *Config) error {
	for name, svc := range map[string]*ServiceConfig{"radarr": c.Radarr, "sonarr": c.Sonarr} {
		if svc == nil || !svc.Enabled {
			continue
		}
		if err := svc.Validate(name); err != nil {
			return err
		}
	}

	if c.Cache != nil {
		switch c.Cache.Type {
		case CacheTypeMemory:
		case CacheTypeRedis:
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("redis URL is required when cache type is redis")
			}
		default:
			return fmt.Errorf("invalid cache type %q: must be %q or %q", c.Cache.Type, CacheTypeMemory, CacheTypeRedis)
		}
	}

	if c.Export != nil {
		if c.Export.MaxWorkers < 1 {
			return fmt.Errorf("export max_workers must be at least 1")
		}
		if c.Export.BatchSize < 1 {
			return fmt.Errorf("export batch_size must be at least 1")
		}
		if c.Export.RateLimit < 0 {
			return fmt.Errorf("export rate_limit must not be negative")
		}
		for _, f := range c.Export.Formats {
			if !slices.Contains(OutputFormats, f) {
				return fmt.Errorf("invalid export format %q: must be one of %s", f, strings.Join(OutputFormats, ", "))
			}
		}
		if n := len(strings.Fields(c.Export.Schedule)); n != 5 {
			return fmt.Errorf("export schedule %q must have 5 cron fields, got %d", c.Export.Schedule, n)
		}
	}

	if c.Analysis != nil && c.Analysis.TrendDays < 1 {
		return fmt.Errorf("analysis trend_days must be at least 1")
	}

	if c.Retry != nil {
		if c.Retry.MaxAttempts < 1 {
			return fmt.Errorf("retry max_attempts must be at least 1")
		}
		if c.Retry.Multiplier < 1 {
			return fmt.Errorf("retry multiplier must be at least 1")
		}
	}

	return nil
}

// Validate checks the connection settings of a service.
func (s *ServiceConfig) Validate(name string) error {
	if s.URL == "" {
		return fmt.Errorf("%s URL is required when %s is configured", name, name)
	}
	if s.APIKey == "" {
		return fmt.Errorf("%s API key is required when %s is configured", name, name)
	}
	return nil
}

// EnabledServices returns the names of the enabled services, radarr first.
func (c *Config) EnabledServices() []string {
	var names []string
	if c.Radarr != nil && c.Radarr.Enabled {
		names = append(names, "radarr")
	}
	if c.Sonarr != nil && c.Sonarr.Enabled {
		names = append(names, "sonarr")
	}
	return names
}

// RequireService returns an error if no service is enabled.
func (c *Config) RequireService() error {
	if len(c.EnabledServices()) == 0 {
		return fmt.Errorf("either sonarr or radarr must be enabled")
	}
	return nil
}

// Service returns the settings of the named service, or nil.
func (c *Config) Service(name string) *ServiceConfig {
	switch name {
	case "radarr":
		return c.Radarr
	case "sonarr":
		return c.Sonarr
	}
	return nil
}

// sanitizeConfig sanitizes the configuration values.
func sanitizeConfig(c *Config) {
	if c == nil {
		return
	}

	if c.Radarr != nil {
		c.Radarr.URL = urlSanitize(c.Radarr.URL)
		c.Radarr.APIKey = strings.TrimSpace(c.Radarr.APIKey)
	}

	if c.Sonarr != nil {
		c.Sonarr.URL = urlSanitize(c.Sonarr.URL)
		c.Sonarr.APIKey = strings.TrimSpace(c.Sonarr.APIKey)
	}

	if c.Database != nil {
		c.Database.Path = os.ExpandEnv(c.Database.Path)
	}

	if c.Export != nil {
		for i, f := range c.Export.Formats {
			c.Export.Formats[i] = strings.ToLower(strings.TrimSpace(f))
		}
	}
}

func urlSanitize(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}
