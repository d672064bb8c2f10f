//go:build !linux

package kvdrivers

import (
	"bufio"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

// Snapshot writes a consistent copy of the whole database file to w.
func (b *BoltDBEmbed) Snapshot(w io.Writer) error {
	startTime := time.Now()
	defer b.mt.RecordSnapshot(startTime)

	wn := bufio.NewWriter(w)
	err := b.db.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(wn)
		return err
	})

	if err != nil {
		return err
	}
	return wn.Flush()
}
