package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultEnv, cfg.Global.Env)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultFrontendOrigin, cfg.Server.FrontendOrigin)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, DefaultDatabaseURL, cfg.Database.URL)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 4, cfg.Summarizer.BatchSize)
	assert.Equal(t, 5, cfg.Summarizer.SinglePassLimit)
	assert.Equal(t, DefaultPresignExpiry, cfg.Storage.PresignExpiry)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
  env: staging
server:
  port: 9000
  frontend_origin: https://earthframe.example.org/
database:
  driver: sqlite
  sqlite:
    path: /tmp/original.db
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "staging", cfg.Global.Env)
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "https://earthframe.example.org", cfg.Server.FrontendOrigin)
				assert.Equal(t, "/tmp/original.db", cfg.Database.SQLite.Path)
			},
		},
		{
			name:    "short PORT name",
			envVars: map[string]string{"PORT": "8081"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8081, cfg.Server.Port)
			},
		},
		{
			name:    "prefixed name wins over short name",
			envVars: map[string]string{"PORT": "8081", "EARTHFRAME_SERVER_PORT": "8082"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8082, cfg.Server.Port)
			},
		},
		{
			name: "short DATABASE_URL, ENV and FRONTEND_ORIGIN names",
			envVars: map[string]string{
				"DATABASE_URL":    "postgres://u:p@db:5432/ef",
				"ENV":             "production",
				"FRONTEND_ORIGIN": "https://ui.example.org",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://u:p@db:5432/ef", cfg.Database.URL)
				assert.Equal(t, "production", cfg.Global.Env)
				assert.Equal(t, "https://ui.example.org", cfg.Server.FrontendOrigin)
			},
		},
		{
			name: "nested prefixed overrides",
			envVars: map[string]string{
				"EARTHFRAME_SUMMARIZER_BATCH_SIZE":     "8",
				"EARTHFRAME_SUMMARIZER_TIMEOUT":        "30s",
				"EARTHFRAME_STORAGE_ALLOWED_BUCKETS":   "e3sm-a,e3sm-b",
				"EARTHFRAME_SERVER_RATE_LIMIT_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.Summarizer.BatchSize)
				assert.Equal(t, 30*time.Second, cfg.Summarizer.Timeout)
				assert.Equal(t, []string{"e3sm-a", "e3sm-b"}, cfg.Storage.AllowedBuckets)
				assert.True(t, cfg.Server.RateLimit.Enabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_MergesFiles(t *testing.T) {
	base := writeConfig(t, `
server:
  port: 9000
database:
  driver: sqlite
`)
	override := writeConfig(t, `
server:
  port: 9100
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: yaml: content:")

	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:      "port out of range",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errSubstr: "server.port",
		},
		{
			name:      "origin without scheme",
			mutate:    func(c *Config) { c.Server.FrontendOrigin = "localhost:5173" },
			errSubstr: "frontend_origin",
		},
		{
			name:      "bad body size",
			mutate:    func(c *Config) { c.Server.MaxBodySize = "lots" },
			errSubstr: "max_body_size",
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Database.Driver = "oracle" },
			errSubstr: "unsupported database driver",
		},
		{
			name:      "postgres without url",
			mutate:    func(c *Config) { c.Database.URL = "" },
			errSubstr: "database.url",
		},
		{
			name: "storage without buckets",
			mutate: func(c *Config) {
				c.Storage.Enabled = true
			},
			errSubstr: "allowed_buckets",
		},
		{
			name: "minio without endpoint",
			mutate: func(c *Config) {
				c.Storage.Enabled = true
				c.Storage.Provider = "minio"
				c.Storage.AllowedBuckets = []string{"e3sm"}
			},
			errSubstr: "storage.endpoint",
		},
		{
			name: "basic auth without users",
			mutate: func(c *Config) {
				c.Auth.Basic.Enabled = true
			},
			errSubstr: "no users",
		},
		{
			name: "basic auth duplicate users",
			mutate: func(c *Config) {
				c.Auth.Basic.Enabled = true
				c.Auth.Basic.Users = []BasicAuthUser{
					{Username: "a", Password: "x"},
					{Username: "a", Password: "y"},
				}
			},
			errSubstr: "duplicate username",
		},
		{
			name:      "summarizer without endpoint",
			mutate:    func(c *Config) { c.Summarizer.Endpoint = "" },
			errSubstr: "summarizer.endpoint",
		},
		{
			name: "disabled summarizer skips checks",
			mutate: func(c *Config) {
				c.Summarizer.Enabled = false
				c.Summarizer.Endpoint = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errSubstr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestServerConfig_AllowedOrigins(t *testing.T) {
	s := ServerConfig{
		FrontendOrigin: "http://localhost:5173",
		CORSOrigins:    []string{"https://a.example", "http://localhost:5173", ""},
	}

	assert.Equal(t,
		[]string{"http://localhost:5173", "https://a.example"},
		s.AllowedOrigins(),
	)
}

func TestServerConfig_MaxBodyBytes(t *testing.T) {
	assert.Equal(t, int64(2*1024*1024), ServerConfig{MaxBodySize: "2MiB"}.MaxBodyBytes())
	assert.Equal(t, int64(1024*1024), ServerConfig{MaxBodySize: "garbage"}.MaxBodyBytes())
}

func TestConfig_Redacted(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Storage.SecretAccessKey = "secret"
	cfg.Summarizer.APIToken = "hf_token"
	cfg.Auth.Basic.Users = []BasicAuthUser{{Username: "ops", Password: "pw"}}

	red := cfg.Redacted()

	assert.NotContains(t, red.Database.URL, "earthframe:earthframe@")
	assert.Equal(t, "********", red.Storage.SecretAccessKey)
	assert.Equal(t, "********", red.Summarizer.APIToken)
	assert.Equal(t, "ops", red.Auth.Basic.Users[0].Username)
	assert.Equal(t, "********", red.Auth.Basic.Users[0].Password)

	// The original is untouched.
	assert.Equal(t, "pw", cfg.Auth.Basic.Users[0].Password)
	assert.Equal(t, "secret", cfg.Storage.SecretAccessKey)
}
