package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		Mode           string   `yaml:"mode"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RateLimit      struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		LockTTL  string `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Auth struct {
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Tracing struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

// Load reads YAML config from path and applies QUIZ_* environment overrides.
// A missing file is not an error; the environment alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Server.Mode == "release" && len(cfg.Auth.Secret) < 32 {
		return cfg, fmt.Errorf("auth secret is too short (%d chars), need at least 32 in release mode", len(cfg.Auth.Secret))
	}
	return cfg, nil
}

// applyEnv overlays QUIZ_<SECTION>_<KEY> variables, e.g. QUIZ_POSTGRES_URL or QUIZ_AUTH_SECRET.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	strs := map[string]*string{
		"server.port":      &cfg.Server.Port,
		"server.mode":      &cfg.Server.Mode,
		"redis.addr":       &cfg.Redis.Addr,
		"redis.password":   &cfg.Redis.Password,
		"redis.lock_ttl":   &cfg.Redis.LockTTL,
		"postgres.url":     &cfg.Postgres.URL,
		"quiz.ttl":         &cfg.Quiz.TTL,
		"auth.secret":      &cfg.Auth.Secret,
		"auth.ttl":         &cfg.Auth.TTL,
		"log.level":        &cfg.Log.Level,
		"log.file":         &cfg.Log.File,
		"tracing.endpoint": &cfg.Tracing.Endpoint,
	}
	for key, dst := range strs {
		if err := v.BindEnv(key); err != nil {
			return err
		}
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	for _, key := range []string{"redis.db", "server.rate_limit.burst", "server.rate_limit.rps", "tracing.enabled", "server.allowed_origins"} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("server.rate_limit.burst") {
		cfg.Server.RateLimit.Burst = v.GetInt("server.rate_limit.burst")
	}
	if v.IsSet("server.rate_limit.rps") {
		cfg.Server.RateLimit.RPS = v.GetFloat64("server.rate_limit.rps")
	}
	if v.IsSet("tracing.enabled") {
		cfg.Tracing.Enabled = v.GetBool("tracing.enabled")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = strings.Split(v.GetString("server.allowed_origins"), ",")
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
