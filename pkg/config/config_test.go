package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
global:
  log_level: info
database:
  driver: sqlite
  sqlite:
    path: /tmp/fact.db
analysis:
  bin_width_minutes: 30
report:
  output_dir: ./original-build
upload:
  s3:
    enabled: true
    bucket: fact-summaries
    secret_access_key: very-secret
api:
  listen: ":9000"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.MySQL.Port)
	assert.Equal(t, DefaultMySQLParams, cfg.Database.MySQL.Params)
	assert.Equal(t, qla.DefaultParams(), cfg.QLAParams())
	assert.Equal(t, DefaultOutputDir, cfg.Report.OutputDir)
	assert.Equal(t, DefaultReportTitle, cfg.Report.Title)
	assert.True(t, cfg.Report.HTML)
	assert.True(t, cfg.Report.Plots)
	assert.Equal(t, DefaultConcurrency, cfg.Report.Concurrency)
	assert.Equal(t, DefaultNightOffsetDays, cfg.Report.NightOffsetDays)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.False(t, cfg.S3Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", baseConfig))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/fact.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 30.0, cfg.Analysis.BinWidthMinutes)
	// Unset keys keep their defaults.
	assert.Equal(t, qla.DefaultAlpha, cfg.Analysis.Alpha)
	assert.Equal(t, "./original-build", cfg.Report.OutputDir)
	assert.Equal(t, ":9000", cfg.API.Listen)
	require.NotNil(t, cfg.Upload.S3)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "fact-summaries", cfg.Upload.S3.Bucket)
}

func TestLoad_MergesFiles(t *testing.T) {
	override := `
analysis:
  alpha: 0.5
report:
  html: false
`

	cfg, err := Load(
		writeConfig(t, "base.yaml", baseConfig),
		writeConfig(t, "override.yaml", override),
	)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Analysis.Alpha)
	assert.Equal(t, 30.0, cfg.Analysis.BinWidthMinutes)
	assert.False(t, cfg.Report.HTML)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", baseConfig)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "./original-build", cfg.Report.OutputDir)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"NIGHTSUMMARY_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested override - database.mysql.password",
			envVars: map[string]string{
				"NIGHTSUMMARY_DATABASE_MYSQL_PASSWORD": "from-env",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-env", cfg.Database.MySQL.Password)
			},
		},
		{
			name: "float override - analysis.alpha",
			envVars: map[string]string{
				"NIGHTSUMMARY_ANALYSIS_ALPHA": "0.25",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.25, cfg.Analysis.Alpha)
			},
		},
		{
			name: "int override - report.concurrency",
			envVars: map[string]string{
				"NIGHTSUMMARY_REPORT_CONCURRENCY": "8",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.Report.Concurrency)
			},
		},
		{
			name: "boolean override - report.plots",
			envVars: map[string]string{
				"NIGHTSUMMARY_REPORT_PLOTS": "false",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Report.Plots)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "broken.yaml", "global: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Global.LogLevel = "loud" },
			wantErr: "global.log_level",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "unsupported driver",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Database.SQLite.Path = "" },
			wantErr: "sqlite path is required",
		},
		{
			name: "mysql without host",
			mutate: func(c *Config) {
				c.Database.Driver = "mysql"
				c.Database.MySQL.Host = ""
			},
			wantErr: "mysql host and database are required",
		},
		{
			name:    "zero bin width",
			mutate:  func(c *Config) { c.Analysis.BinWidthMinutes = 0 },
			wantErr: "analysis",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Report.Concurrency = 0 },
			wantErr: "report.concurrency",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Upload.S3.Bucket = "" },
			wantErr: "upload.s3.bucket",
		},
		{
			name: "rate limit without rate",
			mutate: func(c *Config) {
				c.API.RateLimit.Enabled = true
				c.API.RateLimit.RequestsPerMinute = 0
			},
			wantErr: "requests_per_minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "config.yaml", baseConfig))
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", baseConfig))
	require.NoError(t, err)

	cfg.Database.MySQL.Password = "hunter2"

	out := cfg.Redacted()
	assert.Equal(t, redacted, out.Database.MySQL.Password)
	assert.Empty(t, out.Database.Postgres.Password)
	assert.Equal(t, redacted, out.Upload.S3.SecretAccessKey)

	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Database.MySQL.Password)
	assert.Equal(t, "very-secret", cfg.Upload.S3.SecretAccessKey)
}
