package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	syncdomain "github.com/bridgesync/backend/internal/domain/sync"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Feed        FeedConfig
	Destination DestinationConfig
	Source      SourceConfig
	Sync        SyncConfig
	Order       OrderConfig
	Storage     StorageConfig
	HTTP        HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// FeedConfig holds catalog feed endpoint settings
type FeedConfig struct {
	BaseURL           string
	AccessKey         string
	SecretKey         string
	WorkDir           string
	Timeout           time.Duration
	CategoryAllowList []string
	ImageResolution   string
}

// DestinationConfig holds destination storefront API settings
type DestinationConfig struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
	LocationID  string
	ChannelIDs  []string
}

// SourceConfig holds source marketplace API settings
type SourceConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// SyncConfig holds catalog reconciliation settings. The pricing knobs are
// kept as strings so fixed-point values survive the config layer intact.
type SyncConfig struct {
	GroupSize     int
	ExchangeRate  string
	MarkupPercent string
	HandlingFee   string
	ForceResync   bool
	Interval      time.Duration
	RunOnStart    bool
	Retry         RetryConfig
}

// RetryConfig holds remote call retry settings
type RetryConfig struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MinDelay         time.Duration
	JitterFraction   float64
	RetryAfterMargin time.Duration
}

// OrderConfig holds order reconciliation settings
type OrderConfig struct {
	IdempotencyTTL time.Duration
}

// StorageConfig holds feed archive object storage settings
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxBodySize    int64
	TrustedProxies []string
	WebhookSecret  string
}

// Load loads configuration from TOML file and environment variables
/// Priority (highest to lowest):
// 1. Environment variables with BRIDGE_ prefix (e.g., BRIDGE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Feed: FeedConfig{
			BaseURL:           v.GetString("feed.base_url"),
			AccessKey:         v.GetString("feed.access_key"),
			SecretKey:         v.GetString("feed.secret_key"),
			WorkDir:           v.GetString("feed.work_dir"),
			Timeout:           v.GetDuration("feed.timeout"),
			CategoryAllowList: v.GetStringSlice("feed.category_allow_list"),
			ImageResolution:   v.GetString("feed.image_resolution"),
		},
		Destination: DestinationConfig{
			Endpoint:    v.GetString("destination.endpoint"),
			AccessToken: v.GetString("destination.access_token"),
			Timeout:     v.GetDuration("destination.timeout"),
			LocationID:  v.GetString("destination.location_id"),
			ChannelIDs:  v.GetStringSlice("destination.channel_ids"),
		},
		Source: SourceConfig{
			BaseURL:     v.GetString("source.base_url"),
			AccessToken: v.GetString("source.access_token"),
			Timeout:     v.GetDuration("source.timeout"),
		},
		Sync: SyncConfig{
			GroupSize:     v.GetInt("sync.group_size"),
			ExchangeRate:  v.GetString("sync.exchange_rate"),
			MarkupPercent: v.GetString("sync.markup_percent"),
			HandlingFee:   v.GetString("sync.handling_fee"),
			ForceResync:   v.GetBool("sync.force_resync"),
			Interval:      v.GetDuration("sync.interval"),
			RunOnStart:    v.GetBool("sync.run_on_start"),
			Retry: RetryConfig{
				MaxAttempts:      v.GetInt("sync.retry.max_attempts"),
				InitialDelay:     v.GetDuration("sync.retry.initial_delay"),
				MinDelay:         v.GetDuration("sync.retry.min_delay"),
				JitterFraction:   v.GetFloat64("sync.retry.jitter_fraction"),
				RetryAfterMargin: v.GetDuration("sync.retry.retry_after_margin"),
			},
		},
		Order: OrderConfig{
			IdempotencyTTL: v.GetDuration("order.idempotency_ttl"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			WebhookSecret:  v.GetString("http.webhook_secret"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bridgesync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "bridgesync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Feed.WorkDir == "" {
		cfg.Feed.WorkDir = "/tmp/bridgesync"
	}
	if cfg.Feed.Timeout == 0 {
		cfg.Feed.Timeout = 5 * time.Minute
	}
	if cfg.Feed.ImageResolution == "" {
		cfg.Feed.ImageResolution = "600"
	}
	if cfg.Destination.Timeout == 0 {
		cfg.Destination.Timeout = 30 * time.Second
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 30 * time.Second
	}
	if cfg.Sync.GroupSize == 0 {
		cfg.Sync.GroupSize = 5
	}
	if cfg.Sync.ExchangeRate == "" {
		cfg.Sync.ExchangeRate = "1"
	}
	if cfg.Sync.MarkupPercent == "" {
		cfg.Sync.MarkupPercent = "0"
	}
	if cfg.Sync.HandlingFee == "" {
		cfg.Sync.HandlingFee = "0"
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = time.Hour
	}
	if cfg.Sync.Retry.MaxAttempts == 0 {
		cfg.Sync.Retry.MaxAttempts = 4
	}
	if cfg.Sync.Retry.InitialDelay == 0 {
		cfg.Sync.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Sync.Retry.MinDelay == 0 {
		cfg.Sync.Retry.MinDelay = 100 * time.Millisecond
	}
	if cfg.Sync.Retry.JitterFraction == 0 {
		cfg.Sync.Retry.JitterFraction = 0.2
	}
	if cfg.Sync.Retry.RetryAfterMargin == 0 {
		cfg.Sync.Retry.RetryAfterMargin = 500 * time.Millisecond
	}
	if cfg.Order.IdempotencyTTL == 0 {
		cfg.Order.IdempotencyTTL = 72 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("%w: database.max_open_conns must be positive", syncdomain.ErrConfiguration)
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("%w: database.max_idle_conns cannot be negative", syncdomain.ErrConfiguration)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("%w: database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			syncdomain.ErrConfiguration, c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.GroupSize <= 0 {
		return fmt.Errorf("%w: sync.group_size must be positive", syncdomain.ErrConfiguration)
	}

	rate, err := decimal.NewFromString(c.Sync.ExchangeRate)
	if err != nil || !rate.IsPositive() {
		return fmt.Errorf("%w: sync.exchange_rate must be a positive decimal, got %q",
			syncdomain.ErrConfiguration, c.Sync.ExchangeRate)
	}
	markup, err := decimal.NewFromString(c.Sync.MarkupPercent)
	if err != nil || markup.IsNegative() {
		return fmt.Errorf("%w: sync.markup_percent must be a non-negative decimal, got %q",
			syncdomain.ErrConfiguration, c.Sync.MarkupPercent)
	}
	fee, err := decimal.NewFromString(c.Sync.HandlingFee)
	if err != nil || fee.IsNegative() {
		return fmt.Errorf("%w: sync.handling_fee must be a non-negative decimal, got %q",
			syncdomain.ErrConfiguration, c.Sync.HandlingFee)
	}

	if c.Sync.Retry.JitterFraction < 0 || c.Sync.Retry.JitterFraction >= 1 {
		return fmt.Errorf("%w: sync.retry.jitter_fraction must be in [0, 1), got %f",
			syncdomain.ErrConfiguration, c.Sync.Retry.JitterFraction)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("%w: database.password is required in production", syncdomain.ErrConfiguration)
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("%w: database.sslmode cannot be 'disable' in production", syncdomain.ErrConfiguration)
		}
		if c.Feed.AccessKey == "" || c.Feed.SecretKey == "" {
			return fmt.Errorf("%w: feed credentials are required in production", syncdomain.ErrConfiguration)
		}
		if c.Destination.AccessToken == "" {
			return fmt.Errorf("%w: destination.access_token is required in production", syncdomain.ErrConfiguration)
		}
		if c.Source.AccessToken == "" {
			return fmt.Errorf("%w: source.access_token is required in production", syncdomain.ErrConfiguration)
		}
		if c.HTTP.WebhookSecret == "" {
			return fmt.Errorf("%w: http.webhook_secret is required in production", syncdomain.ErrConfiguration)
		}
	}

	return nil
}

// ExchangeRateDecimal returns the validated exchange rate.
func (s *SyncConfig) ExchangeRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.ExchangeRate)
}

// MarkupPercentDecimal returns the validated markup percentage.
func (s *SyncConfig) MarkupPercentDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.MarkupPercent)
}

// HandlingFeeDecimal returns the validated handling fee.
func (s *SyncConfig) HandlingFeeDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.HandlingFee)
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
