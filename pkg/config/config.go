package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment variable overrides, e.g.
	// NIGHTSUMMARY_DATABASE_MYSQL_PASSWORD.
	EnvPrefix = "NIGHTSUMMARY"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultOutputDir is the default directory for rendered night reports.
	DefaultOutputDir = "./build"

	// DefaultReportTitle is the heading of every night report.
	DefaultReportTitle = "FACT Night Summary"

	// DefaultNightOffsetDays selects the night to summarize when none is
	// given: the QLA of a night is complete after about two days.
	DefaultNightOffsetDays = 2

	// DefaultConcurrency is the number of nights built in parallel.
	DefaultConcurrency = 2

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultMySQLParams makes the driver return DATETIME columns as
	// time.Time in UTC.
	DefaultMySQLParams = "parseTime=true&loc=UTC"

	redacted = "********"
)

// Config is the root configuration for nightsummary.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DatabaseConfig selects and configures the observatory database.
type DatabaseConfig struct {
	Driver      string               `yaml:"driver" mapstructure:"driver"`
	AutoMigrate bool                 `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	MySQL       MySQLConfig          `yaml:"mysql,omitempty" mapstructure:"mysql"`
	Postgres    PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
	SQLite      SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

// MySQLConfig contains MySQL connection settings.
type MySQLConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	Params   string `yaml:"params,omitempty" mapstructure:"params"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnalysisConfig holds the QLA binning and significance parameters.
type AnalysisConfig struct {
	BinWidthMinutes   float64 `yaml:"bin_width_minutes" mapstructure:"bin_width_minutes"`
	RetentionFraction float64 `yaml:"retention_fraction" mapstructure:"retention_fraction"`
	Alpha             float64 `yaml:"alpha" mapstructure:"alpha"`
	AlertThreshold    float64 `yaml:"alert_threshold" mapstructure:"alert_threshold"`
}

// ReportConfig controls night report rendering.
type ReportConfig struct {
	OutputDir       string `yaml:"output_dir" mapstructure:"output_dir"`
	Title           string `yaml:"title" mapstructure:"title"`
	HTML            bool   `yaml:"html" mapstructure:"html"`
	Plots           bool   `yaml:"plots" mapstructure:"plots"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	NightOffsetDays int    `yaml:"night_offset_days" mapstructure:"night_offset_days"`
}

// UploadConfig contains remote storage settings for rendered reports.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig configures uploads to S3-compatible storage.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// APIConfig contains HTTP API settings.
type APIConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// Load reads and merges the given configuration files in order, applies
// defaults and environment overrides. With no paths the configuration is
// built from defaults and the environment only.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(bytes.NewReader(data))
		} else {
			err = v.MergeConfig(bytes.NewReader(data))
		}

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every default with viper so that environment
// overrides work for keys missing from the files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.user", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "factdata")
	v.SetDefault("database.mysql.params", DefaultMySQLParams)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "factdata")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.sqlite.path", "")

	v.SetDefault("analysis.bin_width_minutes", qla.DefaultBinWidthMinutes)
	v.SetDefault("analysis.retention_fraction", qla.DefaultRetentionFraction)
	v.SetDefault("analysis.alpha", qla.DefaultAlpha)
	v.SetDefault("analysis.alert_threshold", qla.DefaultAlertThreshold)

	v.SetDefault("report.output_dir", DefaultOutputDir)
	v.SetDefault("report.title", DefaultReportTitle)
	v.SetDefault("report.html", true)
	v.SetDefault("report.plots", true)
	v.SetDefault("report.concurrency", DefaultConcurrency)
	v.SetDefault("report.night_offset_days", DefaultNightOffsetDays)

	v.SetDefault("api.listen", DefaultListen)
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests_per_minute", 120)
}

// QLAParams returns the analysis parameters for the QLA pipeline.
func (c *Config) QLAParams() qla.Params {
	return qla.Params{
		BinWidthMinutes:   c.Analysis.BinWidthMinutes,
		RetentionFraction: c.Analysis.RetentionFraction,
		Alpha:             c.Analysis.Alpha,
		AlertThreshold:    c.Analysis.AlertThreshold,
	}
}

// S3Enabled reports whether report uploads are configured.
func (c *Config) S3Enabled() bool {
	return c.Upload.S3 != nil && c.Upload.S3.Enabled
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := c.QLAParams().Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	if c.Report.OutputDir == "" {
		return fmt.Errorf("report.output_dir is required")
	}

	if c.Report.Concurrency < 1 {
		return fmt.Errorf("report.concurrency must be at least 1, got %d",
			c.Report.Concurrency)
	}

	if c.Report.NightOffsetDays < 0 {
		return fmt.Errorf("report.night_offset_days must not be negative, got %d",
			c.Report.NightOffsetDays)
	}

	if c.S3Enabled() && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when s3 upload is enabled")
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("api.rate_limit.requests_per_minute must be positive")
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "mysql":
		if d.MySQL.Host == "" || d.MySQL.Database == "" {
			return fmt.Errorf("mysql host and database are required")
		}
	case "postgres":
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("postgres host and database are required")
		}
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", d.Driver)
	}

	return nil
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() Config {
	out := *c

	if out.Database.MySQL.Password != "" {
		out.Database.MySQL.Password = redacted
	}

	if out.Database.Postgres.Password != "" {
		out.Database.Postgres.Password = redacted
	}

	if c.Upload.S3 != nil {
		s3 := *c.Upload.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redacted
		}

		out.Upload.S3 = &s3
	}

	return out
}
