package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	JWTSecret   string
	CORSOrigins []string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MediaBucket    string
	MediaPublicURL string
	MediaMaxBytes  int64

	PostReportThreshold int
	PostTTL             time.Duration
	SweepInterval       time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", "*")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "mellow")
	v.SetDefault("db_name", "mellow")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("media_bucket", "mellow-media")
	v.SetDefault("media_public_url", "http://localhost:9000")
	v.SetDefault("media_max_bytes", 10<<20)

	v.SetDefault("post_report_threshold", 5)
	v.SetDefault("post_ttl", "24h")
	v.SetDefault("sweep_interval", "10m")
}

// Load reads configuration from environment variables (DB_HOST, JWT_SECRET,
// ...) and, when present, a mellow.yaml in the working directory or
// /etc/mellow. Environment wins over the file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("mellow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mellow")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:    v.GetString("http_addr"),
		LogLevel:    v.GetString("log_level"),
		JWTSecret:   v.GetString("jwt_secret"),
		CORSOrigins: splitList(v.GetString("cors_origins")),

		DBHost:     v.GetString("db_host"),
		DBPort:     v.GetInt("db_port"),
		DBUser:     v.GetString("db_user"),
		DBPassword: v.GetString("db_password"),
		DBName:     v.GetString("db_name"),
		DBSSLMode:  v.GetString("db_sslmode"),

		MinioEndpoint:  v.GetString("minio_endpoint"),
		MinioAccessKey: v.GetString("minio_access_key"),
		MinioSecretKey: v.GetString("minio_secret_key"),
		MinioUseSSL:    v.GetBool("minio_use_ssl"),
		MediaBucket:    v.GetString("media_bucket"),
		MediaPublicURL: strings.TrimRight(v.GetString("media_public_url"), "/"),
		MediaMaxBytes:  v.GetInt64("media_max_bytes"),

		PostReportThreshold: v.GetInt("post_report_threshold"),
		PostTTL:             v.GetDuration("post_ttl"),
		SweepInterval:       v.GetDuration("sweep_interval"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe default.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be set (at least 16 characters)")
	}
	if c.PostReportThreshold < 1 {
		return fmt.Errorf("POST_REPORT_THRESHOLD must be positive, got %d", c.PostReportThreshold)
	}
	if c.PostTTL <= 0 {
		return fmt.Errorf("POST_TTL must be positive, got %s", c.PostTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.MediaMaxBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be positive, got %d", c.MediaMaxBytes)
	}
	return nil
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
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
