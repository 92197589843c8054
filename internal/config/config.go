package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevJWTSecret is substituted for a missing secret only outside production and
// only when auth.allowinsecuresecret is set.
const DevJWTSecret = "resumos-dev-insecure-secret"

const (
	EnvProduction = "production"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendLocal = "local"
	BackendS3    = "s3"
)

// ErrMissingJWTSecret is returned by Validate when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("auth jwt secret is required")

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Env    string
	Server struct {
		Addr        string
		PublicURL   string
		MaxUploadMB int64
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Auth struct {
		JWTSecret           string
		TokenTTLMinutes     int
		AllowInsecureSecret bool
	}
	Storage struct {
		Backend   string
		Dir       string
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RESUMOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("server.addr", "0.0.0.0:4000")
	v.SetDefault("server.publicurl", "")
	v.SetDefault("server.maxuploadmb", 20)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/resumos.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 60)
	v.SetDefault("auth.allowinsecuresecret", false)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.dir", "uploads")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "resumos")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the process runs with production semantics.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

// Validate checks cross-field consistency. It returns true when the development
// signing secret had to be substituted so the caller can warn about it.
func (c *Config) Validate() (usedDevSecret bool, err error) {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		if c.IsProduction() || !c.Auth.AllowInsecureSecret {
			return false, ErrMissingJWTSecret
		}
		c.Auth.JWTSecret = DevJWTSecret
		usedDevSecret = true
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return usedDevSecret, fmt.Errorf("auth token ttl must be positive, got %d", c.Auth.TokenTTLMinutes)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return usedDevSecret, fmt.Errorf("database path is required for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return usedDevSecret, fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return usedDevSecret, fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return usedDevSecret, fmt.Errorf("storage dir is required for local backend")
		}
	case BackendS3:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return usedDevSecret, fmt.Errorf("storage bucket is required for s3 backend")
		}
	default:
		return usedDevSecret, fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	if c.Server.MaxUploadMB <= 0 {
		return usedDevSecret, fmt.Errorf("server max upload size must be positive, got %d", c.Server.MaxUploadMB)
	}
	return usedDevSecret, nil
}
