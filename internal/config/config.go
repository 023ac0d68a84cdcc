package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"exam-service/internal/domain"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBlob   = "blob"
	BackendSQL    = "sql"
	BackendRemote = "remote"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		ReadTimeout  string   `yaml:"read_timeout"`
		WriteTimeout string   `yaml:"write_timeout"`
		CORSOrigins  []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
		File string `yaml:"file"`
	} `yaml:"log"`
	Store struct {
		Backend string `yaml:"backend"`
	} `yaml:"store"`
	Blob struct {
		Driver string `yaml:"driver"` // fs|redis
		Dir    string `yaml:"dir"`
		Prefix string `yaml:"prefix"`
	} `yaml:"blob"`
	Database struct {
		Driver string `yaml:"driver"` // sqlite|postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Auth struct {
		Secret     string  `yaml:"secret"`
		Issuer     string  `yaml:"issuer"`
		TokenTTL   string  `yaml:"token_ttl"`
		LoginRate  float64 `yaml:"login_rate"`
		LoginBurst int     `yaml:"login_burst"`
	} `yaml:"auth"`
	Users   []User `yaml:"users"`
	Results struct {
		Duplicates string `yaml:"duplicates"`
	} `yaml:"results"`
	Remote struct {
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
		Login     string `yaml:"login"`
		Password  string `yaml:"password"`
		SubjectID int64  `yaml:"subject_id"` // used when an exam carries no numeric subject
	} `yaml:"remote"`
}

// User seeds the local identity provider.
type User struct {
	ID           int64  `yaml:"id"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Load reads YAML config from path and applies defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "fs"
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = "./data"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "exam-service"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendBlob, BackendSQL:
	case BackendRemote:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendBlob && c.Blob.Driver != "fs" && c.Blob.Driver != "redis" {
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Store.Backend == BackendBlob && c.Blob.Driver == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis blob driver")
	}
	if c.Store.Backend == BackendSQL && c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := domain.ParseDuplicatePolicy(c.Results.Duplicates); err != nil {
		return err
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	for i, u := range c.Users {
		if u.Email == "" || u.PasswordHash == "" {
			return fmt.Errorf("users[%d]: email and password_hash are required", i)
		}
		if !domain.Role(u.Role).Valid() {
			return fmt.Errorf("users[%d]: unknown role %q", i, u.Role)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
