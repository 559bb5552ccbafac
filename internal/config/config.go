package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends accepted in store.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Store struct {
		Backend string `yaml:"backend"`
		Timeout string `yaml:"timeout"`
		Retry   struct {
			Attempts        int    `yaml:"attempts"`
			InitialInterval string `yaml:"initial_interval"`
			MaxInterval     string `yaml:"max_interval"`
		} `yaml:"retry"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		Dir string `yaml:"dir"`
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Sync struct {
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"sync"`
}

// Load reads YAML config from path, applies environment overrides and defaults.
// A missing file is not an error; defaults and environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"STORE_BACKEND":  &c.Store.Backend,
		"REDIS_ADDR":     &c.Redis.Addr,
		"REDIS_PASSWORD": &c.Redis.Password,
		"MONGO_URI":      &c.Mongo.URI,
		"SQLITE_PATH":    &c.SQLite.Path,
		"DATABASE_URL":   &c.Postgres.URL,
		"QUESTIONS_DIR":  &c.Questions.Dir,
		"LOG_LEVEL":      &c.Log.Level,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "signsense"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "signsense.db"
	}
	if c.Questions.Dir == "" {
		c.Questions.Dir = "data"
	}
}

// Validate checks that the selected backend has what it needs to connect.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store backend redis requires redis.addr")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("store backend mongo requires mongo.uri")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
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
