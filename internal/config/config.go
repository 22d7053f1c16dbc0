package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	AllowedOrigin string
	Env           string

	LogLevel  string
	LogFormat string
	LogOutput string

	DatabaseURL     string
	DatabaseMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReportCacheTTLSeconds int
	ReportDefaultTop      int
	ReportMaxTop          int
	DashboardPageSize     int

	ArchiveBackend            string
	ReportsDir                string
	ArchiveMetadataCacheSize  int
	ArchiveMetadataCacheTTL   time.Duration
	ArchiveReconcileSchedule  string
	ArchiveOrphanGraceMinutes int

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3Prefix       string

	AuthSecret            string
	AccessTokenTTLMinutes int

	// operator accounts provisioned at startup when the store has none
	SeedAdminPassword string
	SeedStaffPassword string
}

const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Load reads configuration from an optional storedash.toml and the
// environment. Environment variables win over the file.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("storedash")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/storedash")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		Port:          v.GetString("port"),
		AllowedOrigin: v.GetString("allowed_origin"),
		Env:           v.GetString("app_env"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),

		DatabaseURL:     strings.TrimSpace(v.GetString("database_url")),
		DatabaseMigrate: v.GetBool("database_migrate"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		ReportCacheTTLSeconds: positiveOr(v.GetInt("report_cache_ttl_seconds"), 60),
		ReportDefaultTop:      positiveOr(v.GetInt("report_default_top"), 10),
		ReportMaxTop:          positiveOr(v.GetInt("report_max_top"), 100),
		DashboardPageSize:     positiveOr(v.GetInt("dashboard_page_size"), 6),

		ArchiveBackend:            strings.ToLower(strings.TrimSpace(v.GetString("archive_backend"))),
		ReportsDir:                v.GetString("reports_dir"),
		ArchiveMetadataCacheSize:  positiveOr(v.GetInt("archive_metadata_cache_size"), 256),
		ArchiveMetadataCacheTTL:   time.Duration(positiveOr(v.GetInt("archive_metadata_cache_ttl_seconds"), 300)) * time.Second,
		ArchiveReconcileSchedule:  strings.TrimSpace(v.GetString("archive_reconcile_schedule")),
		ArchiveOrphanGraceMinutes: positiveOr(v.GetInt("archive_orphan_grace_minutes"), 10),

		S3Endpoint:     strings.TrimSpace(v.GetString("s3_endpoint")),
		S3Region:       v.GetString("s3_region"),
		S3Bucket:       strings.TrimSpace(v.GetString("s3_bucket")),
		S3AccessKey:    v.GetString("s3_access_key"),
		S3SecretKey:    v.GetString("s3_secret_key"),
		S3UsePathStyle: v.GetBool("s3_use_path_style"),
		S3Prefix:       strings.Trim(v.GetString("s3_prefix"), "/"),

		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: positiveOr(v.GetInt("access_token_ttl_minutes"), 480),

		SeedAdminPassword: v.GetString("seed_admin_password"),
		SeedStaffPassword: v.GetString("seed_staff_password"),
	}
	if cfg.ReportDefaultTop > cfg.ReportMaxTop {
		cfg.ReportDefaultTop = cfg.ReportMaxTop
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_output", "stdout")
	v.SetDefault("database_migrate", true)
	v.SetDefault("redis_db", 0)
	v.SetDefault("report_cache_ttl_seconds", 60)
	v.SetDefault("report_default_top", 10)
	v.SetDefault("report_max_top", 100)
	v.SetDefault("dashboard_page_size", 6)
	v.SetDefault("archive_backend", BackendFS)
	v.SetDefault("reports_dir", "./data/reports")
	v.SetDefault("archive_metadata_cache_size", 256)
	v.SetDefault("archive_metadata_cache_ttl_seconds", 300)
	v.SetDefault("archive_reconcile_schedule", "@every 1h")
	v.SetDefault("archive_orphan_grace_minutes", 10)
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_use_path_style", true)
	v.SetDefault("access_token_ttl_minutes", 480)
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) OrphanGrace() time.Duration {
	return time.Duration(c.ArchiveOrphanGraceMinutes) * time.Minute
}

func positiveOr(value int, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}
