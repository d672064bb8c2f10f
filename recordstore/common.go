package recordstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ankur-anand/statusdb/internal/keycodec"
	"github.com/ankur-anand/statusdb/pkg/kvdrivers"
)

const (
	boltFileName = "status.bolt.db"
	lmdbDirName  = "status.lmdb"
	pidLockName  = "pid.lock"

	// DefaultNamespace tags the region holding the records.
	DefaultNamespace = "r"

	layoutVersion byte = 1
)

var (
	ErrDatabaseDirInUse  = errors.New("pid.lock is held by another process")
	ErrEmptyAccountID    = errors.New("account id must not be empty")
	ErrStoreClosed       = errors.New("record store is closed")
	ErrRecordCorrupted   = errors.New("record corrupted")
	ErrLayoutVersion     = errors.New("unsupported on-disk layout version")
	ErrUnsupportedEngine = errors.New("unsupported storage engine")
	ErrInvalidConfig     = errors.New("invalid record store config")
)

var (
	sysKeyFilter = keycodec.KeySystem([]byte("bloom"))
	sysKeyClean  = keycodec.KeySystem([]byte("clean"))
	sysKeyLayout = keycodec.KeySystem([]byte("schema"))
)

var (
	packageKey = []string{"recordstore"}

	mKeySetTotal          = append(packageKey, "set", "total")
	mKeySetErrorsTotal    = append(packageKey, "set", "errors", "total")
	mKeySetDurations      = append(packageKey, "set", "durations", "seconds")
	mKeyGetTotal          = append(packageKey, "get", "total")
	mKeyGetMissTotal      = append(packageKey, "get", "miss", "total")
	mKeyGetFilterSkip     = append(packageKey, "get", "filter", "skip", "total")
	mKeyFilterRebuildRecs = append(packageKey, "filter", "rebuild", "record", "total")
	mKeyFilterRebuildDur  = append(packageKey, "filter", "rebuild", "durations", "seconds")
)

// Engine selects the B-tree driver backing the store.
type Engine string

const (
	BoltEngine Engine = "bolt"
	LMDBEngine Engine = "lmdb"
)

// ParseEngine maps a config value to an Engine. Matching is case-insensitive.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case BoltEngine, "":
		return BoltEngine, nil
	case LMDBEngine:
		return LMDBEngine, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, s)
	}
}

// Config embeds all the config needed for Store.
type Config struct {
	Engine                  Engine  `toml:"engine"`
	Namespace               string  `toml:"namespace"`
	NoSync                  bool    `toml:"no_sync"`
	MmapSize                int64   `toml:"mmap_size"`
	FilterExpectedItems     uint    `toml:"bloom_expected_items"`
	FilterFalsePositiveRate float64 `toml:"bloom_false_positive_rate"`
}

// NewDefaultConfig returns an initialized default config for Store.
func NewDefaultConfig() *Config {
	return &Config{
		Engine:                  BoltEngine,
		Namespace:               DefaultNamespace,
		MmapSize:                1 << 30,
		FilterExpectedItems:     100_000,
		FilterFalsePositiveRate: 0.001,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("%w: namespace must not be empty", ErrInvalidConfig)
	}
	if _, err := ParseEngine(string(c.Engine)); err != nil {
		return err
	}
	if c.FilterExpectedItems == 0 {
		return fmt.Errorf("%w: bloom_expected_items must be positive", ErrInvalidConfig)
	}
	if c.FilterFalsePositiveRate <= 0 || c.FilterFalsePositiveRate >= 1 {
		return fmt.Errorf("%w: bloom_false_positive_rate must be in (0, 1), got %v",
			ErrInvalidConfig, c.FilterFalsePositiveRate)
	}
	return nil
}

func (c *Config) driverConfig() kvdrivers.Config {
	return kvdrivers.Config{
		Namespace: c.Namespace,
		NoSync:    c.NoSync,
		MmapSize:  c.MmapSize,
	}
}
