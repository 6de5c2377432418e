// Package config loads expirebench settings from a YAML file and TIMEDMAP_*
// environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/IvanBrykalov/timedmap/scheduler"
	"github.com/IvanBrykalov/timedmap/scheduler/pool"
	"github.com/IvanBrykalov/timedmap/scheduler/timer"
)

const envPrefix = "TIMEDMAP"

// Scheduler kinds accepted by scheduler.kind.
const (
	KindTimer = "timer" // per-entry heap, scheduler/timer
	KindPool  = "pool"  // bounded worker pool, scheduler/pool
)

// Config is the full expirebench configuration.
type Config struct {
	Map       MapS       `mapstructure:"map"`
	Scheduler SchedulerS `mapstructure:"scheduler"`
	Bench     BenchS     `mapstructure:"bench"`
	Metrics   MetricsS   `mapstructure:"metrics"`
	Pprof     PprofS     `mapstructure:"pprof"`
	Log       LogS       `mapstructure:"log"`
}

// MapS holds the map settings.
type MapS struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Shards     int           `mapstructure:"shards"`
}

// SchedulerS picks the expiry strategy.
type SchedulerS struct {
	Kind    string `mapstructure:"kind"`
	Workers int    `mapstructure:"workers"`
}

// BenchS describes the churn workload. Percentages are of all operations;
// whatever remains after puts, removes and clears is reads.
type BenchS struct {
	Duration        time.Duration `mapstructure:"duration"`
	Workers         int           `mapstructure:"workers"`
	Keys            int           `mapstructure:"keys"`
	MinTTL          time.Duration `mapstructure:"min_ttl"`
	MaxTTL          time.Duration `mapstructure:"max_ttl"`
	PutPct          int           `mapstructure:"put_pct"`
	RemovePct       int           `mapstructure:"remove_pct"`
	ClearPerMillion int           `mapstructure:"clear_per_million"`
	Seed            int64         `mapstructure:"seed"`
}

// MetricsS sets the Prometheus listen address; empty disables it.
type MetricsS struct {
	Addr string `mapstructure:"addr"`
}

// PprofS sets the pprof listen address; empty disables it.
type PprofS struct {
	Addr string `mapstructure:"addr"`
}

// LogS selects the logrus level and formatter (text or json).
type LogS struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("map.default_ttl", "300ms")
	v.SetDefault("map.shards", 0)
	v.SetDefault("scheduler.kind", KindPool)
	v.SetDefault("scheduler.workers", pool.DefaultWorkers)
	v.SetDefault("bench.duration", "10s")
	v.SetDefault("bench.workers", 8)
	v.SetDefault("bench.keys", 100_000)
	v.SetDefault("bench.min_ttl", "10ms")
	v.SetDefault("bench.max_ttl", "500ms")
	v.SetDefault("bench.put_pct", 30)
	v.SetDefault("bench.remove_pct", 10)
	v.SetDefault("bench.clear_per_million", 5)
	v.SetDefault("bench.seed", 1)
	v.SetDefault("metrics.addr", ":8080")
	v.SetDefault("pprof.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path (if non-empty) on top of the defaults, applies TIMEDMAP_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the map or the workload cannot run with.
func (c *Config) Validate() error {
	if c.Map.DefaultTTL <= 0 {
		return errors.Errorf("config: map.default_ttl must be positive, got %v", c.Map.DefaultTTL)
	}
	if c.Map.Shards < 0 {
		return errors.Errorf("config: map.shards must be >= 0, got %d", c.Map.Shards)
	}
	switch strings.ToLower(c.Scheduler.Kind) {
	case KindTimer, KindPool:
	default:
		return errors.Errorf("config: unknown scheduler.kind %q (use %s or %s)", c.Scheduler.Kind, KindTimer, KindPool)
	}
	if c.Scheduler.Workers < 0 {
		return errors.Errorf("config: scheduler.workers must be >= 0, got %d", c.Scheduler.Workers)
	}
	b := c.Bench
	if b.Keys <= 0 || b.Workers <= 0 {
		return errors.New("config: bench.keys and bench.workers must be positive")
	}
	if b.MinTTL < 0 || b.MaxTTL < b.MinTTL {
		return errors.Errorf("config: bad bench ttl range [%v, %v]", b.MinTTL, b.MaxTTL)
	}
	if b.PutPct < 0 || b.RemovePct < 0 || b.PutPct+b.RemovePct > 100 {
		return errors.Errorf("config: bench.put_pct + bench.remove_pct must be within [0, 100], got %d + %d", b.PutPct, b.RemovePct)
	}
	return nil
}

// Build returns the scheduler named by Kind. A zero Workers means
// pool.DefaultWorkers.
func (s SchedulerS) Build(logger logrus.FieldLogger, clk clock.Clock) (scheduler.Scheduler, error) {
	cfg := scheduler.Config{Clock: clk, Logger: logger}
	switch strings.ToLower(s.Kind) {
	case KindTimer:
		return timer.New(cfg), nil
	case KindPool, "":
		return pool.New(pool.Options{Config: cfg, Workers: s.Workers}), nil
	}
	return nil, errors.Errorf("config: unknown scheduler kind %q", s.Kind)
}

// NewLogger builds a logrus logger from the log section.
func (l LogS) NewLogger() (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, errors.Wrap(err, "config: log.level")
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	switch strings.ToLower(l.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("config: unknown log.format %q", l.Format)
	}
	return logger, nil
}
