package recordstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/ankur-anand/statusdb/pkg/kvdrivers"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/gofrs/flock"
	"github.com/hashicorp/go-metrics"
)

// dataStore is the driver surface the Store needs. Both kvdrivers.BoltDBEmbed
// and kvdrivers.LmdbEmbed satisfy it.
type dataStore interface {
	Fresh() bool
	FSync() error
	Close() error
	SetKV(key []byte, value []byte) error
	GetKV(key []byte) ([]byte, error)
	ForEachKV(fn kvdrivers.KVVisitor) error
	StoreMetadata(key []byte, value []byte) error
	RetrieveMetadata(key []byte) ([]byte, error)
	Snapshot(w io.Writer) error
}

// Stats is a point-in-time view of the store counters.
type Stats struct {
	Namespace   string `json:"namespace"`
	Engine      string `json:"engine"`
	Sets        uint64 `json:"sets"`
	Gets        uint64 `json:"gets"`
	GetMisses   uint64 `json:"get_misses"`
	FilterSkips uint64 `json:"filter_skips"`
}

// Store is the persistent mapping from account id to status message.
// It is the only reader and writer of its namespace.
type Store struct {
	mu           sync.RWMutex
	namespace    string
	dir          string
	conf         *Config
	dataStore    dataStore
	filter       *bloom.BloomFilter
	fileLock     *flock.Flock
	closed       bool
	metricsLabel []metrics.Label

	sets        atomic.Uint64
	gets        atomic.Uint64
	getMisses   atomic.Uint64
	filterSkips atomic.Uint64
}

// Open returns a Store for conf.Namespace under dataDir. If the namespace
// already holds records the returned Store is a handle on them; nothing is
// truncated. The namespace directory is locked for the lifetime of the Store.
func Open(dataDir string, conf *Config) (*Store, error) {
	if conf == nil {
		conf = NewDefaultConfig()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	engine, _ := ParseEngine(string(conf.Engine))
	c := *conf
	c.Engine = engine
	conf = &c

	nsDir := filepath.Join(dataDir, conf.Namespace)
	if err := os.MkdirAll(nsDir, 0o755); err != nil {
		return nil, err
	}

	fileLock := flock.New(filepath.Join(nsDir, pidLockName))
	if err := tryFileLock(fileLock); err != nil {
		return nil, err
	}

	ds, err := openDriver(engine, nsDir, conf)
	if err != nil {
		return nil, errors.Join(err, fileLock.Unlock())
	}

	s := &Store{
		namespace:    conf.Namespace,
		dir:          nsDir,
		conf:         conf,
		dataStore:    ds,
		fileLock:     fileLock,
		metricsLabel: []metrics.Label{{Name: "namespace", Value: conf.Namespace}},
	}

	if err := s.init(); err != nil {
		return nil, errors.Join(err, ds.Close(), fileLock.Unlock())
	}
	return s, nil
}

func openDriver(engine Engine, nsDir string, conf *Config) (dataStore, error) {
	switch engine {
	case BoltEngine:
		return kvdrivers.NewBoltdb(filepath.Join(nsDir, boltFileName), conf.driverConfig())
	case LMDBEngine:
		return kvdrivers.NewLmdb(filepath.Join(nsDir, lmdbDirName), conf.driverConfig())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}
}

func tryFileLock(fileLock *flock.Flock) error {
	locked, err := fileLock.TryLock()
	if err != nil {
		return err
	}
	// unable to get the exclusive lock
	if !locked {
		return ErrDatabaseDirInUse
	}
	return nil
}

func (s *Store) init() error {
	fresh := s.dataStore.Fresh()
	if err := s.checkLayout(); err != nil {
		return err
	}

	source, err := s.loadFilter()
	if err != nil {
		return err
	}

	// until Close persists the filter again, a crash must force a rebuild.
	if err := s.dataStore.StoreMetadata(sysKeyClean, []byte{0}); err != nil {
		return fmt.Errorf("mark store dirty: %w", err)
	}

	slog.Info("[statusdb.recordstore]",
		slog.String("event_type", "store.opened"),
		slog.String("namespace", s.namespace),
		slog.String("engine", string(s.conf.Engine)),
		slog.Bool("fresh", fresh),
		slog.String("filter_source", source),
	)
	return nil
}

func (s *Store) checkLayout() error {
	version, err := s.dataStore.RetrieveMetadata(sysKeyLayout)
	if errors.Is(err, kvdrivers.ErrKeyNotFound) {
		return s.dataStore.StoreMetadata(sysKeyLayout, []byte{layoutVersion})
	}
	if err != nil {
		return err
	}
	if len(version) != 1 || version[0] != layoutVersion {
		return fmt.Errorf("%w: %v", ErrLayoutVersion, version)
	}
	return nil
}

// Namespace returns the namespace tag of the store.
func (s *Store) Namespace() string {
	return s.namespace
}

// Set upserts accountID -> message. A later Get observes either the previous
// value or message, never a partial write.
func (s *Store) Set(accountID, message string) error {
	if accountID == "" {
		return ErrEmptyAccountID
	}

	startTime := time.Now()
	value := msgcodec.AppendString(make([]byte, 0, msgcodec.EncodedStringSize(message)), message)
	key := []byte(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if err := s.dataStore.SetKV(key, value); err != nil {
		metrics.IncrCounterWithLabels(mKeySetErrorsTotal, 1, s.metricsLabel)
		return fmt.Errorf("set record %q: %w", accountID, err)
	}
	s.filter.Add(key)

	s.sets.Add(1)
	metrics.IncrCounterWithLabels(mKeySetTotal, 1, s.metricsLabel)
	metrics.MeasureSinceWithLabels(mKeySetDurations, startTime, s.metricsLabel)
	return nil
}

// Get returns the message stored for accountID. found is false when no record
// exists; this includes the empty account id. err is reserved for a closed
// store, I/O failures and undecodable stored values.
func (s *Store) Get(accountID string) (message string, found bool, err error) {
	key := []byte(accountID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}

	s.gets.Add(1)
	metrics.IncrCounterWithLabels(mKeyGetTotal, 1, s.metricsLabel)

	if !s.filter.Test(key) {
		s.filterSkips.Add(1)
		s.getMisses.Add(1)
		metrics.IncrCounterWithLabels(mKeyGetFilterSkip, 1, s.metricsLabel)
		return "", false, nil
	}

	value, err := s.dataStore.GetKV(key)
	if errors.Is(err, kvdrivers.ErrKeyNotFound) {
		s.getMisses.Add(1)
		metrics.IncrCounterWithLabels(mKeyGetMissTotal, 1, s.metricsLabel)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get record %q: %w", accountID, err)
	}

	message, err = decodeValue(value)
	if err != nil {
		return "", false, fmt.Errorf("get record %q: %w", accountID, err)
	}
	return message, true, nil
}

func decodeValue(value []byte) (string, error) {
	message, rest, err := msgcodec.ReadString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecordCorrupted, err)
	}
	if len(rest) != 0 {
		return "", fmt.Errorf("%w: %d trailing bytes", ErrRecordCorrupted, len(rest))
	}
	return message, nil
}

// Snapshot writes a consistent copy of the store to w.
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.dataStore.Snapshot(w)
}

// Stats returns the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Namespace:   s.namespace,
		Engine:      string(s.conf.Engine),
		Sets:        s.sets.Load(),
		Gets:        s.gets.Load(),
		GetMisses:   s.getMisses.Load(),
		FilterSkips: s.filterSkips.Load(),
	}
}

// Close persists the lookup filter, marks the store cleanly closed, syncs and
// releases the directory lock. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.saveFilter(); err != nil {
		errs = append(errs, fmt.Errorf("save filter: %w", err))
	} else if err := s.dataStore.StoreMetadata(sysKeyClean, []byte{1}); err != nil {
		errs = append(errs, fmt.Errorf("mark store clean: %w", err))
	}
	if err := s.dataStore.FSync(); err != nil {
		errs = append(errs, fmt.Errorf("fsync: %w", err))
	}
	if err := s.dataStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close driver: %w", err))
	}
	if err := s.fileLock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}

	slog.Info("[statusdb.recordstore]",
		slog.String("event_type", "store.closed"),
		slog.String("namespace", s.namespace),
		slog.Group("ops",
			slog.Uint64("sets", s.sets.Load()),
			slog.Uint64("gets", s.gets.Load()),
		),
	)
	return errors.Join(errs...)
}
