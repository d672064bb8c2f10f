package kvdrivers

import (
	"errors"
	"time"

	"github.com/ankur-anand/statusdb/internal/keycodec"
	"go.etcd.io/bbolt"
)

// compile time check.
var _ unifiedStorage = (*BoltDBEmbed)(nil)

// BoltDBEmbed wraps an initialized BoltDB (bbolt) database and related metadata.
type BoltDBEmbed struct {
	db        *bbolt.DB
	namespace []byte
	conf      Config
	path      string
	fresh     bool
	mt        *MetricsTracker
}

// NewBoltdb opens (or creates) a BoltDB database at the given file path,
// initializes the namespace bucket and a system metadata bucket,
// and returns a BoltDBEmbed wrapper.
//
// Buckets that already exist are reused as is.
func NewBoltdb(path string, conf Config) (*BoltDBEmbed, error) {
	if conf.Namespace == "" {
		return nil, ErrInvalidNamespace
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	db.NoSync = conf.NoSync

	var fresh bool
	err = db.Update(func(tx *bbolt.Tx) error {
		fresh = tx.Bucket([]byte(conf.Namespace)) == nil
		_, err := tx.CreateBucketIfNotExists([]byte(conf.Namespace))
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists([]byte(sysBucketMetaData))
		return err
	})
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return &BoltDBEmbed{db: db,
		namespace: []byte(conf.Namespace),
		conf:      conf,
		path:      path,
		fresh:     fresh,
		mt:        NewMetricsTracker("bolt", conf.Namespace),
	}, nil
}

// Fresh reports whether the namespace bucket was created by this open.
func (b *BoltDBEmbed) Fresh() bool {
	return b.fresh
}

// FSync ensures all database pages are flushed to disk.
func (b *BoltDBEmbed) FSync() error {
	return b.db.Sync()
}

// Close closes the underlying BoltDB database.
func (b *BoltDBEmbed) Close() error {
	return b.db.Close()
}

// SetKV associates a value with a key within the namespace.
// The write is one bolt transaction, readers see either the old or the new value.
func (b *BoltDBEmbed) SetKV(key []byte, value []byte) error {
	startTime := time.Now()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.namespace)
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Put(keycodec.KeyKV(key), value)
	})

	b.mt.recordOpResult(OpSet, startTime, err)
	return err
}

// GetKV retrieves a value associated with a key within the namespace.
func (b *BoltDBEmbed) GetKV(key []byte) ([]byte, error) {
	typedKey := keycodec.KeyKV(key)

	startTime := time.Now()
	var value []byte

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.namespace)
		if bucket == nil {
			return ErrBucketNotFound
		}

		storedValue := bucket.Get(typedKey)
		if storedValue == nil {
			return ErrKeyNotFound
		}
		value = make([]byte, len(storedValue))
		copy(value, storedValue)
		return nil
	})

	b.mt.recordOpResult(OpGet, startTime, err)
	return value, err
}

// ForEachKV calls fn for every record in the namespace, in key order.
// Iteration stops at the first error returned by fn.
func (b *BoltDBEmbed) ForEachKV(fn KVVisitor) error {
	startTime := time.Now()
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.namespace)
		if bucket == nil {
			return ErrBucketNotFound
		}

		c := bucket.Cursor()
		prefix := []byte{keycodec.KeyTypeKV}
		for k, v := c.Seek(prefix); k != nil; k, v = c.Next() {
			userKey, ok := keycodec.UserKey(k)
			if !ok {
				break
			}
			if err := fn(userKey, v); err != nil {
				return err
			}
		}
		return nil
	})

	b.mt.recordOpResult(OpScan, startTime, err)
	return err
}

func (b *BoltDBEmbed) StoreMetadata(key []byte, value []byte) error {
	startTime := time.Now()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sysBucketMetaData))
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Put(key, value)
	})
	b.mt.recordOpResult(OpMetadata, startTime, err)
	return err
}

func (b *BoltDBEmbed) RetrieveMetadata(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sysBucketMetaData))
		if bucket == nil {
			return ErrBucketNotFound
		}
		data := bucket.Get(key)
		if data == nil {
			return ErrKeyNotFound
		}
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	return value, err
}
