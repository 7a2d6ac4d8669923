package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fbposts/internal/logger"
	"fbposts/pkg/proxysource"
)

const envPrefix = "FBPOSTS"

type Config struct {
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Scraper  ScraperConfig  `mapstructure:"scraper" validate:"required"`
	Proxy    ProxyConfig    `mapstructure:"proxy" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Output   OutputConfig   `mapstructure:"output" validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type EngineConfig struct {
	MaxRetries           int           `mapstructure:"max_retries" validate:"min=0,max=20"`
	BaseBackoff          time.Duration `mapstructure:"base_backoff" validate:"required,min=1ms,max=1m"`
	MaxBackoff           time.Duration `mapstructure:"max_backoff" validate:"required,gtefield=BaseBackoff,max=30m"`
	RotateEveryNFailures int           `mapstructure:"rotate_every_n_failures" validate:"required,min=1,max=100"`
	MaxPagesPerTarget    int           `mapstructure:"max_pages_per_target" validate:"min=0"`
	MaxPostsPerTarget    int           `mapstructure:"max_posts_per_target" validate:"min=0"`
	DedupScope           string        `mapstructure:"dedup_scope" validate:"required,dedup_scope"`
}

type ScraperConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"required,min=1s,max=5m"`
	UserAgents        []string      `mapstructure:"user_agents" validate:"dive,min=10"`
	Concurrency       int           `mapstructure:"concurrency" validate:"required,min=1,max=64"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"min=0"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" validate:"required,min=1024"`
}

type ProxyConfig struct {
	Sources         []string      `mapstructure:"sources" validate:"dive,oneof=static file url geonode cache"`
	List            []string      `mapstructure:"list"`
	File            string        `mapstructure:"file"`
	URLs            []string      `mapstructure:"urls" validate:"dive,url"`
	GeonodeURL      string        `mapstructure:"geonode_url" validate:"omitempty,url"`
	MaxFailures     int           `mapstructure:"max_failures" validate:"required,min=1,max=100"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"min=0"`
	CheckEnabled    bool          `mapstructure:"check_enabled"`
	CheckURL        string        `mapstructure:"check_url" validate:"required,url"`
	CheckTimeout    time.Duration `mapstructure:"check_timeout" validate:"required,min=1s,max=1m"`
	CheckWorkers    int           `mapstructure:"check_workers" validate:"required,min=1,max=200"`
	CheckInterval   time.Duration `mapstructure:"check_interval" validate:"min=0"`
}

type DatabaseConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path" validate:"required_if=Enabled true"`
	MaxAge  time.Duration `mapstructure:"max_age" validate:"min=0"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db" validate:"min=0,max=15"`
	KeyPrefix string        `mapstructure:"key_prefix" validate:"required"`
	TTL       time.Duration `mapstructure:"ttl" validate:"required,min=1m"`
}

type OutputConfig struct {
	Path   string `mapstructure:"path" validate:"required"`
	Format string `mapstructure:"format" validate:"required,oneof=json ndjson"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// setDefaults configures default values for viper
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.base_backoff", "500ms")
	v.SetDefault("engine.max_backoff", "30s")
	v.SetDefault("engine.rotate_every_n_failures", 2)
	v.SetDefault("engine.max_pages_per_target", 0)
	v.SetDefault("engine.max_posts_per_target", 0)
	v.SetDefault("engine.dedup_scope", "run")

	// Scraper defaults
	v.SetDefault("scraper.base_url", "https://mbasic.facebook.com")
	v.SetDefault("scraper.timeout", "20s")
	v.SetDefault("scraper.user_agents", []string{
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
	v.SetDefault("scraper.concurrency", 4)
	v.SetDefault("scraper.requests_per_second", 1.0)
	v.SetDefault("scraper.max_body_bytes", 8*1024*1024)

	// Proxy defaults
	v.SetDefault("proxy.sources", []string{})
	v.SetDefault("proxy.list", []string{})
	v.SetDefault("proxy.file", "")
	v.SetDefault("proxy.urls", []string{})
	v.SetDefault("proxy.geonode_url", proxysource.DefaultGeonodeURL)
	v.SetDefault("proxy.max_failures", 3)
	v.SetDefault("proxy.refresh_interval", "0s")
	v.SetDefault("proxy.check_enabled", true)
	v.SetDefault("proxy.check_url", "https://www.facebook.com/robots.txt")
	v.SetDefault("proxy.check_timeout", "15s")
	v.SetDefault("proxy.check_workers", 20)
	v.SetDefault("proxy.check_interval", "10m")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.path", "./data/fbposts.db")
	v.SetDefault("database.max_age", "168h")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "fbposts:seen")
	v.SetDefault("redis.ttl", "24h")

	// Output defaults
	v.SetDefault("output.path", "./out/posts.json")
	v.SetDefault("output.format", "json")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")
}

// LoadConfig loads configuration from defaults, an optional YAML file,
// .env and FBPOSTS_* environment variables, in increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fbposts")

	// Load .env file if it exists; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.New("config").WarnBg("Failed to load .env file: %v", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.New("config").InfoBg("No config file found, using defaults and environment variables")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks config against its struct tags and custom rules.
func Validate(config *Config) error {
	validate := validator.New()

	if err := registerCustomValidators(validate); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// registerCustomValidators adds custom validation rules
func registerCustomValidators(validate *validator.Validate) error {
	// Custom validator for hostname:port format
	err := validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		if addr == "" {
			return false
		}
		// Simple check for :port format
		return strings.Contains(addr, ":")
	})
	if err != nil {
		return err
	}

	return validate.RegisterValidation("dedup_scope", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "run", "per-target":
			return true
		default:
			return false
		}
	})
}

// SaveConfigTemplate generates a sample configuration file
func SaveConfigTemplate(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}

	return nil
}

// PrintConfig logs the effective configuration without secrets.
func PrintConfig(config *Config) {
	log := logger.New("config")
	log.InfoBg("Configuration loaded:")
	log.InfoBg("  Engine: %d retries, backoff %v..%v, rotate every %d failure(s), dedup %s",
		config.Engine.MaxRetries, config.Engine.BaseBackoff, config.Engine.MaxBackoff,
		config.Engine.RotateEveryNFailures, config.Engine.DedupScope)
	log.InfoBg("  Limits: %d page(s), %d post(s) per target (0 = unlimited)",
		config.Engine.MaxPagesPerTarget, config.Engine.MaxPostsPerTarget)
	log.InfoBg("  Scraper: %s, %d worker(s), %.2f req/s, timeout %v, %d user agent(s)",
		config.Scraper.BaseURL, config.Scraper.Concurrency, config.Scraper.RequestsPerSecond,
		config.Scraper.Timeout, len(config.Scraper.UserAgents))
	log.InfoBg("  Proxy Sources: %v (check: %v, max failures: %d)",
		config.Proxy.Sources, config.Proxy.CheckEnabled, config.Proxy.MaxFailures)
	if config.Database.Enabled {
		log.InfoBg("  Database: %s", config.Database.Path)
	}
	if config.Redis.Enabled {
		password := "[NOT SET]"
		if config.Redis.Password != "" {
			password = "[SET]"
		}
		log.InfoBg("  Redis: %s db %d (password %s, ttl %v)", config.Redis.Addr, config.Redis.DB, password, config.Redis.TTL)
	}
	log.InfoBg("  Output: %s (%s)", config.Output.Path, config.Output.Format)
	if config.Metrics.Enabled {
		log.InfoBg("  Metrics: %s", config.Metrics.ListenAddr)
	}
}
