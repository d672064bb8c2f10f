package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ankur-anand/statusdb/pkg/logutil"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/time/rate"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config : top-level configuration.
type Config struct {
	HTTPPort      int           `toml:"http_port"`
	ListenIP      string        `toml:"listen_ip"`
	Storage       StorageConfig `toml:"storage_config"`
	LogConfig     LogConfig     `toml:"log_config"`
	Limiter       Limiter       `toml:"limiter"`
	MetricsConfig MetricsConfig `toml:"metrics_config"`
	PProfConfig   PProfConfig   `toml:"pprof_config"`
}

type StorageConfig struct {
	BaseDir                string  `toml:"base_dir"`
	Namespace              string  `toml:"namespace"`
	Engine                 string  `toml:"engine"`
	NoSync                 bool    `toml:"no_sync"`
	MmapSize               string  `toml:"mmap_size"`
	BloomExpectedItems     uint    `toml:"bloom_expected_items"`
	BloomFalsePositiveRate float64 `toml:"bloom_false_positive_rate"`
	StatsReportInterval    string  `toml:"stats_report_interval"`
}

type LogConfig struct {
	MinLevelPercents map[string]float64 `toml:"min_level_percents"`
	LogLevel         string             `toml:"log_level"`
}

// Limiter throttles writes. An empty section leaves writes unthrottled.
type Limiter struct {
	Interval string `toml:"interval"`
	Burst    int    `toml:"burst"`
}

type MetricsConfig struct {
	Prefix         string `toml:"prefix"`
	ReportInterval string `toml:"report_interval"`
}

type PProfConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// Load reads and validates the TOML file at path.
func Load(path string) (Config, error) {
	var cfg Config
	cfgBytes, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(cfgBytes, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http_port %d out of range", ErrInvalidConfig, c.HTTPPort)
	}
	if c.PProfConfig.Enabled && !isValidPort(c.PProfConfig.Port) {
		return fmt.Errorf("%w: pprof port %d out of range", ErrInvalidConfig, c.PProfConfig.Port)
	}
	if _, err := logutil.ParseLevel(c.LogConfig.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := ParseLevelPercents(c.LogConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Storage.RecordStoreConfig(); err != nil {
		return err
	}
	if _, err := BuildLimiter(c.Limiter); err != nil {
		return err
	}
	if _, err := parseDuration("metrics_config.report_interval", c.MetricsConfig.ReportInterval, time.Second); err != nil {
		return err
	}
	if _, err := c.Storage.ReportInterval(); err != nil {
		return err
	}
	return nil
}

// RecordStoreConfig converts the storage section into a record store config.
// Unset fields keep the record store defaults.
func (s StorageConfig) RecordStoreConfig() (*recordstore.Config, error) {
	conf := recordstore.NewDefaultConfig()

	engine, err := recordstore.ParseEngine(s.Engine)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	conf.Engine = engine
	conf.NoSync = s.NoSync

	if s.Namespace != "" {
		conf.Namespace = s.Namespace
	}
	if s.MmapSize != "" {
		size, err := humanize.ParseBytes(s.MmapSize)
		if err != nil {
			return nil, fmt.Errorf("%w: mmap_size: %v", ErrInvalidConfig, err)
		}
		conf.MmapSize = int64(size)
	}
	if s.BloomExpectedItems > 0 {
		conf.FilterExpectedItems = s.BloomExpectedItems
	}
	if s.BloomFalsePositiveRate != 0 {
		conf.FilterFalsePositiveRate = s.BloomFalsePositiveRate
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ReportInterval is how often the store counters are logged.
func (s StorageConfig) ReportInterval() (time.Duration, error) {
	return parseDuration("storage_config.stats_report_interval", s.StatsReportInterval, time.Minute)
}

// MetricsReportInterval is how often tally flushes to its reporter.
func (m MetricsConfig) MetricsReportInterval() time.Duration {
	d, _ := parseDuration("metrics_config.report_interval", m.ReportInterval, time.Second)
	return d
}

// MetricsPrefix defaults to statusdb.
func (m MetricsConfig) MetricsPrefix() string {
	if m.Prefix == "" {
		return "statusdb"
	}
	return m.Prefix
}

// ParseLevelPercents returns the per-level sampling table. Warn and error are
// never sampled unless configured.
func ParseLevelPercents(cfg LogConfig) (map[slog.Level]float64, error) {
	out := map[slog.Level]float64{
		slog.LevelDebug: 100.0,
		slog.LevelInfo:  100.0,
		slog.LevelWarn:  100.0,
		slog.LevelError: 100.0,
	}

	configured, err := logutil.ParseLevelPercents(cfg.MinLevelPercents)
	if err != nil {
		return nil, err
	}
	for level, percent := range configured {
		out[level] = percent
	}
	return out, nil
}

// BuildLimiter returns the write limiter, or nil when no interval is set.
func BuildLimiter(cfg Limiter) (*rate.Limiter, error) {
	if cfg.Interval == "" {
		return nil, nil
	}

	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid limiter interval: %v", ErrInvalidConfig, err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: limiter interval must be positive", ErrInvalidConfig)
	}

	burst := 1
	if cfg.Burst > 0 {
		burst = cfg.Burst
	}
	return rate.NewLimiter(rate.Every(interval), burst), nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, field)
	}
	return d, nil
}

// isValidPort checks if a given integer is a valid port number (1-65535).
func isValidPort(port int) bool {
	return port >= 1 && port <= 65535
}
