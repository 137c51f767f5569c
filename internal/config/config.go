package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/service"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
	"github.com/abhisek/nextlesson/internal/telemetry"
)

// EnvPrefix namespaces environment overrides, e.g. NEXTLESSON_STORE_DRIVER.
const EnvPrefix = "NEXTLESSON"

// Config holds application configuration loaded from files and environment variables.
type Config struct {
	Env       string           `mapstructure:"env"` // current application environment (local, dev, prod etc)
	Log       Log              `mapstructure:"log"`
	Server    Server           `mapstructure:"server"`
	Store     Store            `mapstructure:"store"`
	Catalog   Catalog          `mapstructure:"catalog"`
	Mastery   mastery.Config   `mapstructure:"mastery"`
	Due       spacedrep.Config `mapstructure:"due"`
	Recommend recommend.Config `mapstructure:"recommend"`
	Service   service.Config   `mapstructure:"service"`
	Tracing   telemetry.Config `mapstructure:"tracing"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Server contains HTTP listener settings.
type Server struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// Store selects and configures the persistence backend.
type Store struct {
	Driver          string        `mapstructure:"driver"`            // memory, sqlite, postgres or redis
	DSN             string        `mapstructure:"dsn"`               // sqlite path or postgres connection string
	RedisAddr       string        `mapstructure:"redis_addr"`        // host:port for the redis driver
	MaxConnections  int32         `mapstructure:"max_connections"`   // postgres pool size
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"` // postgres connection lifetime
}

type Catalog struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	rc := recommend.DefaultConfig()
	mc := mastery.DefaultConfig()
	dc := spacedrep.DefaultConfig()

	defaults := map[string]any{
		"env":                     "local",
		"log.level":               "info",
		"server.addr":             ":8080",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "10s",
		"server.cors_origins":     []string{"*"},
		"store.driver":            store.DriverSQLite,
		"store.dsn":               "",
		"store.redis_addr":        "localhost:6379",
		"store.max_connections":   10,
		"store.max_conn_lifetime": "30m",
		"catalog.dir":             "courses",

		"mastery.warmup_observations": mc.WarmupObservations,
		"mastery.warmup_alpha":        mc.WarmupAlpha,
		"mastery.alpha":               mc.Alpha,

		"due.base_interval_days": dc.BaseIntervalDays,
		"due.mastery_factor":     dc.MasteryFactor,

		"recommend.weights.overdue":         rc.Weights.Overdue,
		"recommend.weights.mastery":         rc.Weights.Mastery,
		"recommend.weights.order":           rc.Weights.Order,
		"recommend.due_value":               rc.DueValue,
		"recommend.critical_value":          rc.CriticalValue,
		"recommend.short_win_minutes":       rc.ShortWinMinutes,
		"recommend.short_win_bonus":         rc.ShortWinBonus,
		"recommend.recent_penalty":          rc.RecentPenalty,
		"recommend.too_long_penalty":        rc.TooLongPenalty,
		"recommend.low_mastery_threshold":   rc.LowMasteryThreshold,
		"recommend.max_candidates":          rc.MaxCandidates,
		"service.max_retries":               service.DefaultMaxRetries,
		"tracing.stdout":                    false,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads configuration from an optional YAML file, an optional .env file
// and NEXTLESSON_* environment variables, in increasing precedence.
// With path empty, ./config.yaml and ./config/config.yaml are tried.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	// Configure environment variable handling and key mapping.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section, including the tunables of each package.
func (c *Config) Validate() error {
	if !slices.Contains(store.Drivers(), c.Store.Driver) {
		return apperr.Validation("store.driver", c.Store.Driver, "must be one of "+strings.Join(store.Drivers(), ", "))
	}
	if c.Store.Driver == store.DriverPostgres && c.Store.DSN == "" {
		return apperr.Validation("store.dsn", "", "required for the postgres driver")
	}
	if c.Store.Driver == store.DriverRedis && c.Store.RedisAddr == "" {
		return apperr.Validation("store.redis_addr", "", "required for the redis driver")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return apperr.Validation("server.timeouts", nil, "must be >= 0")
	}

	checks := []func() error{
		c.Mastery.Validate,
		c.Due.Validate,
		c.Recommend.Validate,
		c.Service.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// IsProduction reports whether Env names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}
