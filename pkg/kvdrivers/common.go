package kvdrivers

import (
	"errors"
)

var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrBucketNotFound   = errors.New("bucket not found")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrInvalidNamespace = errors.New("namespace must not be empty")
)

var (
	sysBucketMetaData = "sys.statusdb.metadata"
)

var (
	OpSet      = "set"
	OpGet      = "get"
	OpScan     = "scan"
	OpMetadata = "metadata"
)

// Config holds the options shared by every driver.
type Config struct {
	// Namespace is the bucket (bolt) or named DBI (lmdb) holding the records.
	Namespace string
	NoSync    bool
	// MmapSize is the lmdb map size in bytes. Ignored by bolt.
	MmapSize int64
}

// KVVisitor is called once per record during a scan. key and value are only
// valid for the duration of the call.
type KVVisitor func(key, value []byte) error
