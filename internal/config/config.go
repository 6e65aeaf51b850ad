package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Events   EventsConfig
	Pipeline PipelineConfig
	Asset    AssetConfig
	Auth     AuthConfig
	Tracing  TracingConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
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
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// EventsConfig holds lifecycle event bus configuration
type EventsConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// PipelineConfig holds ingestion pipeline configuration
type PipelineConfig struct {
	ScratchDir  string
	FFmpegPath  string
	FFprobePath string
	SegmentTime int
	DrainTick   time.Duration
}

// AssetConfig holds asset lifecycle configuration
type AssetConfig struct {
	StallWindow      time.Duration
	OutboxInterval   time.Duration
	OutboxMaxAttempt int
	SlotLockTTL      time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled        bool
	JaegerEndpoint string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "10m")
	viper.SetDefault("server.writeTimeout", "10m")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.maxUploadBytes", int64(16)*1024*1024*1024)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "vodpipe")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "media")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Events defaults
	viper.SetDefault("events.host", "localhost")
	viper.SetDefault("events.port", 5672)
	viper.SetDefault("events.user", "guest")
	viper.SetDefault("events.password", "guest")
	viper.SetDefault("events.vhost", "/")

	// Pipeline defaults
	viper.SetDefault("pipeline.scratchDir", "/tmp/vodpipe")
	viper.SetDefault("pipeline.ffmpegPath", "ffmpeg")
	viper.SetDefault("pipeline.ffprobePath", "ffprobe")
	viper.SetDefault("pipeline.segmentTime", 6)
	viper.SetDefault("pipeline.drainTick", "1s")

	// Asset lifecycle defaults
	viper.SetDefault("asset.stallWindow", "5m")
	viper.SetDefault("asset.outboxInterval", "30s")
	viper.SetDefault("asset.outboxMaxAttempt", 10)
	viper.SetDefault("asset.slotLockTTL", "30s")

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}
