package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/go-units"
)

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string          `yaml:"host" mapstructure:"host"`
	Port           int             `yaml:"port" mapstructure:"port"`
	FrontendOrigin string          `yaml:"frontend_origin" mapstructure:"frontend_origin"`
	CORSOrigins    []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	MaxBodySize    string          `yaml:"max_body_size" mapstructure:"max_body_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// Listen returns the host:port address the HTTP server binds to.
func (s ServerConfig) Listen() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AllowedOrigins returns the frontend origin followed by any additional
// CORS origins, without duplicates.
func (s ServerConfig) AllowedOrigins() []string {
	origins := make([]string, 0, 1+len(s.CORSOrigins))
	seen := make(map[string]struct{}, 1+len(s.CORSOrigins))

	for _, o := range append([]string{s.FrontendOrigin}, s.CORSOrigins...) {
		if o == "" {
			continue
		}

		if _, ok := seen[o]; ok {
			continue
		}

		seen[o] = struct{}{}
		origins = append(origins, o)
	}

	return origins
}

// MaxBodyBytes returns the request body limit in bytes.
func (s ServerConfig) MaxBodyBytes() int64 {
	n, err := units.RAMInBytes(s.MaxBodySize)
	if err != nil || n <= 0 {
		n, _ = units.RAMInBytes(DefaultMaxBodySize)
	}

	return n
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Write   RateLimitTier `yaml:"write,omitempty" mapstructure:"write"`
	Analyze RateLimitTier `yaml:"analyze,omitempty" mapstructure:"analyze"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains authentication settings for mutating endpoints.
type AuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user from config.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

func (a AuthConfig) validate() error {
	if !a.Basic.Enabled {
		return nil
	}

	if len(a.Basic.Users) == 0 {
		return fmt.Errorf("auth.basic is enabled but no users are configured")
	}

	seen := make(map[string]struct{}, len(a.Basic.Users))

	for i, u := range a.Basic.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("auth.basic.users[%d]: username and password are required", i)
		}

		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("auth.basic.users[%d]: duplicate username %q", i, u.Username)
		}

		seen[u.Username] = struct{}{}
	}

	return nil
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver          string               `yaml:"driver" mapstructure:"driver"`
	URL             string               `yaml:"url,omitempty" mapstructure:"url"`
	SQLite          SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	AutoMigrate     bool                 `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	MaxOpenConns    int                  `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int                  `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration        `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration        `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case "postgres":
		if d.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", d.Driver)
	}

	if d.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be >= 1")
	}

	if d.MaxIdleConns < 0 || d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns must be between 0 and max_open_conns")
	}

	if d.ConnMaxLifetime < 0 || d.ConnMaxIdleTime < 0 {
		return fmt.Errorf("database connection lifetimes must be >= 0")
	}

	return nil
}

// StorageConfig configures the object store that holds artifact files
// referenced by s3:// URIs.
type StorageConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Provider        string        `yaml:"provider" mapstructure:"provider"`
	Endpoint        string        `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Region          string        `yaml:"region,omitempty" mapstructure:"region"`
	AccessKeyID     string        `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	UseSSL          bool          `yaml:"use_ssl" mapstructure:"use_ssl"`
	ForcePathStyle  bool          `yaml:"force_path_style" mapstructure:"force_path_style"`
	AllowedBuckets  []string      `yaml:"allowed_buckets,omitempty" mapstructure:"allowed_buckets"`
	PresignExpiry   time.Duration `yaml:"presign_expiry" mapstructure:"presign_expiry"`
}

func (s StorageConfig) validate() error {
	if !s.Enabled {
		return nil
	}

	switch s.Provider {
	case "s3":
	case "minio":
		if s.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for the minio provider")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %q", s.Provider)
	}

	if len(s.AllowedBuckets) == 0 {
		return fmt.Errorf("storage.allowed_buckets must list at least one bucket")
	}

	if s.PresignExpiry <= 0 {
		return fmt.Errorf("storage.presign_expiry must be positive")
	}

	return nil
}

// SummarizerConfig configures the external summarization inference service.
type SummarizerConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint        string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIToken        string        `yaml:"api_token,omitempty" mapstructure:"api_token"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	SinglePassLimit int           `yaml:"single_pass_limit" mapstructure:"single_pass_limit"`
	Concurrency     int           `yaml:"concurrency" mapstructure:"concurrency"`
}

func (s SummarizerConfig) validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Endpoint == "" {
		return fmt.Errorf("summarizer.endpoint is required when the summarizer is enabled")
	}

	if s.Timeout <= 0 {
		return fmt.Errorf("summarizer.timeout must be positive")
	}

	if s.BatchSize < 1 || s.SinglePassLimit < 1 || s.Concurrency < 1 {
		return fmt.Errorf("summarizer batch_size, single_pass_limit and concurrency must be >= 1")
	}

	return nil
}
