package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	FlowStore    FlowStoreConfig    `mapstructure:"flowstore"`
	LogStore     LogStoreConfig     `mapstructure:"logstore"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Partitioning PartitioningConfig `mapstructure:"partitioning"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, local
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	LocalPath string `mapstructure:"local_path"`
}

type FlowStoreConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type LogStoreConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type QueueConfig struct {
	RedisAddr             string `mapstructure:"redis_addr"`
	RedisPassword         string `mapstructure:"redis_password"`
	RedisDB               int    `mapstructure:"redis_db"`
	ProcessingDestination string `mapstructure:"processing_destination"`
	SinkPrefix            string `mapstructure:"sink_prefix"`
	MaxLen                int64  `mapstructure:"max_len"`
}

type PartitioningConfig struct {
	ChunkSize      int  `mapstructure:"chunk_size"`
	VerifyByteSize bool `mapstructure:"verify_byte_size"`
}

type RetentionConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Interval           time.Duration `mapstructure:"interval"`
	SuperTransientDays int           `mapstructure:"super_transient_days"`
	AccTestDays        int           `mapstructure:"acctest_days"`
	TransientDays      int           `mapstructure:"transient_days"`
	TestDays           int           `mapstructure:"test_days"`
	ExpirationDays     int           `mapstructure:"expiration_days"`
	AbandonedAfterDays int           `mapstructure:"abandoned_after_days"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and endpoints usually come from the deployment environment
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("flowstore.base_url", "FLOWSTORE_URL")
	v.BindEnv("logstore.base_url", "LOGSTORE_URL")
	v.BindEnv("queue.redis_addr", "REDIS_ADDR")
	v.BindEnv("queue.redis_password", "REDIS_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jobstore.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "dataio-fs")
	v.SetDefault("flowstore.base_url", "http://localhost:8081/flow-store")
	v.SetDefault("flowstore.timeout", 10*time.Second)
	v.SetDefault("flowstore.retry_count", 2)
	v.SetDefault("logstore.timeout", 10*time.Second)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.processing_destination", "dataio.processor")
	v.SetDefault("queue.sink_prefix", "dataio.sink.")
	v.SetDefault("queue.max_len", 0)
	v.SetDefault("partitioning.chunk_size", 10)
	v.SetDefault("partitioning.verify_byte_size", true)
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", time.Hour)
	v.SetDefault("retention.super_transient_days", 1)
	v.SetDefault("retention.acctest_days", 5)
	v.SetDefault("retention.transient_days", 90)
	v.SetDefault("retention.test_days", 90)
	v.SetDefault("retention.expiration_days", 1810)
	v.SetDefault("retention.abandoned_after_days", 0)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
