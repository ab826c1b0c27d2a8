package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BackendConfig selects the base data provider.
type BackendConfig struct {
	Kind       string        `mapstructure:"kind"` // memory, sql or rest
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	LocalPath   string `mapstructure:"local_path"`
	PublicURL   string `mapstructure:"public_url"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// UserConfig is a login allowed by the built-in auth handler.
type UserConfig struct {
	ID           string   `mapstructure:"id"`
	Email        string   `mapstructure:"email"`
	PasswordHash string   `mapstructure:"password_hash"`
	Roles        []string `mapstructure:"roles"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Users      []UserConfig  `mapstructure:"users"`
}

type AuditConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	SensitiveResources []string `mapstructure:"sensitive_resources"`
	BufferSize         int      `mapstructure:"buffer_size"`
	FlushIntervalMs    int      `mapstructure:"flush_interval_ms"`
	RetentionDays      int      `mapstructure:"retention_days"`
}

type LogConfig struct {
	Verbosity int `mapstructure:"verbosity"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		if d.Name == ":memory:" {
			return d.Name
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "crm")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("backend.kind", "memory")
	v.SetDefault("backend.rate_limit", 20.0)
	v.SetDefault("backend.rate_burst", 10)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.public_url", "/files")
	v.SetDefault("storage.max_file_size", 10485760)
	v.SetDefault("auth.jwt_secret", "changeme-secret")
	v.SetDefault("auth.token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.sensitive_resources", []string{"sales"})
	v.SetDefault("audit.buffer_size", 500)
	v.SetDefault("audit.flush_interval_ms", 100)
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("log.verbosity", 0)
}

// Load reads app.yaml from file, or from "." and "../.." when file is empty.
// A missing config file is not an error; defaults and CRM_* environment
// variables still apply.
func Load(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
