//go:build linux

package kvdrivers

import (
	"bufio"
	"io"
	"syscall"
	"time"

	"go.etcd.io/bbolt"
)

// Snapshot writes a consistent copy of the whole database file to w.
func (b *BoltDBEmbed) Snapshot(w io.Writer) error {
	startTime := time.Now()
	defer b.mt.RecordSnapshot(startTime)

	// helps in performance, if the provided writer doesn't
	// have buffer.
	wn := bufio.NewWriter(w)
	err := b.db.View(func(tx *bbolt.Tx) error {
		// On Linux, enable direct IO for efficient database copying.
		tx.WriteFlag = syscall.O_DIRECT

		_, err := tx.WriteTo(wn)
		return err
	})

	if err != nil {
		return err
	}
	return wn.Flush()
}
