package kvdrivers

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/ankur-anand/statusdb/internal/keycodec"
)

var _ unifiedStorage = (*LmdbEmbed)(nil)

const maxNamedDBs = 8

// LmdbEmbed stores an initialized lmdb environment.
// http://www.lmdb.tech/doc/group__mdb.html
type LmdbEmbed struct {
	env       *lmdb.Env
	namespace []byte
	dataDB    lmdb.DBI
	metaDB    lmdb.DBI
	fresh     bool
	mt        *MetricsTracker
}

// NewLmdb returns an initialized Lmdb Env with the provided configuration Parameter.
// An existing named DBI for the namespace is reopened, never truncated.
func NewLmdb(path string, conf Config) (*LmdbEmbed, error) {
	if conf.Namespace == "" {
		return nil, ErrInvalidNamespace
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, err
	}

	// metadata DBI plus room for sibling namespaces sharing the environment.
	err = env.SetMaxDBs(maxNamedDBs)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set max DBs: %w", err)
	}

	err = env.SetMapSize(conf.MmapSize)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set map size: %w", err)
	}

	err = env.Open(path, lmdb.Create|lmdb.NoReadahead, 0644)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to open environment: %w", err)
	}

	if conf.NoSync {
		if err := env.SetFlags(lmdb.NoSync); err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to set nosync flag: %w", err)
		}
	}

	// stale readers
	staleReaders, err := env.ReaderCheck()
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to check for stale readers: %w", err)
	}
	if staleReaders > 0 {
		slog.Warn("[statusdb.kvdrivers]", slog.String("message", "Cleared reader slots from dead processes"),
			slog.Int("stale_readers", staleReaders))
	}

	var dataDB, metaDB lmdb.DBI
	var fresh bool
	err = env.Update(func(txn *lmdb.Txn) error {
		var err error
		dataDB, err = txn.OpenDBI(conf.Namespace, 0)
		if lmdb.IsNotFound(err) {
			fresh = true
			dataDB, err = txn.OpenDBI(conf.Namespace, lmdb.Create)
		}
		if err != nil {
			return err
		}
		// created for storing system metadata.
		metaDB, err = txn.OpenDBI(sysBucketMetaData, lmdb.Create)
		return err
	})
	if err != nil {
		env.Close()
		return nil, err
	}

	mt := NewMetricsTracker("lmdb", conf.Namespace)
	return &LmdbEmbed{env: env,
		dataDB:    dataDB,
		metaDB:    metaDB,
		namespace: []byte(conf.Namespace),
		fresh:     fresh,
		mt:        mt,
	}, nil
}

// Fresh reports whether the namespace DBI was created by this open.
func (l *LmdbEmbed) Fresh() bool {
	return l.fresh
}

// FSync Call the underlying Fsync.
func (l *LmdbEmbed) FSync() error {
	return l.env.Sync(true)
}

// Close the underlying lmdb env.
func (l *LmdbEmbed) Close() error {
	return l.env.Close()
}

// SetKV associates a value with a key within the namespace.
func (l *LmdbEmbed) SetKV(key []byte, value []byte) error {
	startTime := time.Now()
	err := l.env.Update(func(txn *lmdb.Txn) error {
		return txn.Put(l.dataDB, keycodec.KeyKV(key), value, 0)
	})
	l.mt.recordOpResult(OpSet, startTime, err)
	return err
}

// GetKV retrieves a value associated with a key within the namespace.
func (l *LmdbEmbed) GetKV(key []byte) ([]byte, error) {
	typedKey := keycodec.KeyKV(key)
	startTime := time.Now()
	var value []byte
	err := l.env.View(func(txn *lmdb.Txn) error {
		storedValue, err := txn.Get(l.dataDB, typedKey)
		if err != nil {
			if lmdb.IsNotFound(err) {
				return ErrKeyNotFound
			}
			return err
		}

		value = make([]byte, len(storedValue))
		copy(value, storedValue)
		return nil
	})

	l.mt.recordOpResult(OpGet, startTime, err)
	return value, err
}

// ForEachKV calls fn for every record in the namespace, in key order.
func (l *LmdbEmbed) ForEachKV(fn KVVisitor) error {
	startTime := time.Now()
	err := l.env.View(func(txn *lmdb.Txn) error {
		cursor, err := txn.OpenCursor(l.dataDB)
		if err != nil {
			return fmt.Errorf("failed to open cursor: %w", err)
		}
		defer cursor.Close()

		k, v, err := cursor.Get([]byte{keycodec.KeyTypeKV}, nil, lmdb.SetRange)
		for ; err == nil; k, v, err = cursor.Get(nil, nil, lmdb.Next) {
			userKey, ok := keycodec.UserKey(k)
			if !ok {
				return nil
			}
			if err := fn(userKey, v); err != nil {
				return err
			}
		}
		if lmdb.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("cursor iteration failed: %w", err)
	})

	l.mt.recordOpResult(OpScan, startTime, err)
	return err
}

// Snapshot dumps every entry of the namespace as
// [keyLen u32 LE][key][valLen u32 LE][value] records.
func (l *LmdbEmbed) Snapshot(w io.Writer) error {
	startTime := time.Now()
	defer l.mt.RecordSnapshot(startTime)

	bw := bufio.NewWriter(w)
	err := l.env.View(func(txn *lmdb.Txn) error {
		cursor, err := txn.OpenCursor(l.dataDB)
		if err != nil {
			return fmt.Errorf("failed to open cursor: %w", err)
		}
		defer cursor.Close()

		var lenBuf [4]byte
		for {
			key, val, err := cursor.Get(nil, nil, lmdb.Next)
			if lmdb.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("cursor iteration failed: %w", err)
			}

			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key)))
			if _, err := bw.Write(lenBuf[:]); err != nil {
				return fmt.Errorf("failed to write to snapshot: %w", err)
			}
			if _, err := bw.Write(key); err != nil {
				return fmt.Errorf("failed to write to snapshot: %w", err)
			}
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(val)))
			if _, err := bw.Write(lenBuf[:]); err != nil {
				return fmt.Errorf("failed to write to snapshot: %w", err)
			}
			if _, err := bw.Write(val); err != nil {
				return fmt.Errorf("failed to write to snapshot: %w", err)
			}
		}
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func (l *LmdbEmbed) StoreMetadata(key []byte, value []byte) error {
	startTime := time.Now()
	err := l.env.Update(func(txn *lmdb.Txn) error {
		return txn.Put(l.metaDB, key, value, 0)
	})
	l.mt.recordOpResult(OpMetadata, startTime, err)
	return err
}

func (l *LmdbEmbed) RetrieveMetadata(key []byte) ([]byte, error) {
	var value []byte
	err := l.env.View(func(txn *lmdb.Txn) error {
		data, err := txn.Get(l.metaDB, key)
		if lmdb.IsNotFound(err) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		value = append([]byte(nil), data...)
		return nil
	})
	return value, err
}
