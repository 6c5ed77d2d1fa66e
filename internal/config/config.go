package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Processing ProcessingConfig
	Sprites    SpritesConfig
	Delivery   DeliveryConfig
	Auth       AuthConfig
	Webhook    WebhookConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int `validate:"gt=0"`
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `validate:"oneof=postgres memory"`
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	JobTTL   time.Duration
}

// StorageConfig holds object storage configuration for the artifact archive
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Mode     string `validate:"oneof=local rabbitmq"`
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// ProcessingConfig holds transcoding configuration
type ProcessingConfig struct {
	FFmpegPath  string `validate:"required"`
	FFprobePath string `validate:"required"`
	OutputRoot  string `validate:"required"`
	JobTimeout  time.Duration
	Profiles    []models.QualityProfile `validate:"dive"`
}

// SpriteVariantConfig holds one density rendering of the sprite grid
type SpriteVariantConfig struct {
	DPI     int `validate:"gt=0"`
	Width   int `validate:"gt=0"`
	Height  int `validate:"gt=0"`
	Quality int `validate:"min=2,max=31"`
}

// SpritesConfig holds sprite sheet generation settings
type SpritesConfig struct {
	Interval      float64               `validate:"gt=0"`
	MaxThumbnails int                   `validate:"gt=0"`
	MaxPerSheet   int                   `validate:"gt=0"`
	Columns       int                   `validate:"gt=0"`
	Variants      []SpriteVariantConfig `validate:"min=1,dive"`
}

// DeliveryConfig holds artifact streaming settings
type DeliveryConfig struct {
	CacheMaxAge time.Duration
	RateLimit   int
	RateWindow  time.Duration
}

// AuthConfig holds service-token settings. An empty secret disables the check.
type AuthConfig struct {
	JWTSecret string
}

// WebhookConfig holds terminal-state notification settings
type WebhookConfig struct {
	URLs   []string `validate:"dive,url"`
	Secret string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
	Output string
}

// MetricsConfig holds Prometheus server settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is applied first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Processing.Profiles) == 0 {
		config.Processing.Profiles = models.DefaultQualityLadder()
	}
	if len(config.Sprites.Variants) == 0 {
		config.Sprites.Variants = defaultSpriteVariants()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the struct tags of every section
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// defaultSpriteVariants mirrors the transcoder's default densities
func defaultSpriteVariants() []SpriteVariantConfig {
	defaults := transcoder.DefaultSpriteConfig().Variants
	variants := make([]SpriteVariantConfig, 0, len(defaults))
	for _, v := range defaults {
		variants = append(variants, SpriteVariantConfig{
			DPI:     v.DPI,
			Width:   v.Width,
			Height:  v.Height,
			Quality: v.Quality,
		})
	}
	return variants
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "0s")
	v.SetDefault("server.shutdownTimeout", "30s")

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "scrubstream")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.jobTTL", "30s")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "artifacts")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)

	// Queue defaults
	v.SetDefault("queue.mode", "local")
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Processing defaults
	v.SetDefault("processing.ffmpegPath", "ffmpeg")
	v.SetDefault("processing.ffprobePath", "ffprobe")
	v.SetDefault("processing.outputRoot", "/var/lib/scrubstream/media")
	v.SetDefault("processing.jobTimeout", "0s")

	// Sprite defaults
	sprites := transcoder.DefaultSpriteConfig()
	v.SetDefault("sprites.interval", sprites.IntervalSeconds)
	v.SetDefault("sprites.maxThumbnails", sprites.MaxThumbnails)
	v.SetDefault("sprites.maxPerSheet", sprites.MaxPerSheet)
	v.SetDefault("sprites.columns", sprites.Columns)

	// Delivery defaults
	v.SetDefault("delivery.cacheMaxAge", "1h")
	v.SetDefault("delivery.rateLimit", 600)
	v.SetDefault("delivery.rateWindow", "1m")

	v.SetDefault("auth.jwtSecret", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "scrubstream")
	v.SetDefault("tracing.endpoint", "localhost:6831")
}
