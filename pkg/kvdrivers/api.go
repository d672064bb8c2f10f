package kvdrivers

import (
	"io"
)

// This interface is unexported and exists only to validate that all implementing
// types have the required methods. It is not intended for external use.
type unifiedStorage interface {
	FSync() error
	Close() error
	Fresh() bool
	SetKV(key []byte, value []byte) error
	GetKV(key []byte) ([]byte, error)
	ForEachKV(fn KVVisitor) error
	StoreMetadata(key []byte, value []byte) error
	RetrieveMetadata(key []byte) ([]byte, error)
	Snapshot(w io.Writer) error
}
