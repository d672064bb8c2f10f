package cliapp

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ankur-anand/statusdb/cmd/statusdb/config"
	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"
)

const (
	snapshotExt       = ".snapshot"
	lockRetryInterval = 50 * time.Millisecond
)

// EncodeMessage returns the structured payload for msg, base64 encoded unless
// asHex is set.
func EncodeMessage(msg string, asHex bool) string {
	payload := msgcodec.EncodeSetMessageInput(msg)
	if asHex {
		return hex.EncodeToString(payload)
	}
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodePayload decodes a base64 or hex structured payload and returns its
// message.
func DecodePayload(payload string, asHex bool) (string, error) {
	payload = strings.TrimSpace(payload)

	var raw []byte
	var err error
	if asHex {
		raw, err = hex.DecodeString(payload)
	} else {
		raw, err = base64.StdEncoding.DecodeString(payload)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", msgcodec.ErrMalformedPayload, err)
	}
	return msgcodec.Structured(raw).Normalize()
}

// BackupResult describes a written snapshot.
type BackupResult struct {
	Path string
	Size int64
}

// HumanSize renders the snapshot size for operators.
func (b BackupResult) HumanSize() string {
	return humanize.Bytes(uint64(b.Size))
}

// Backup opens the configured store, writes a snapshot under outDir and
// closes the store again. While a server holds the store it keeps retrying
// for up to wait; a zero wait fails on the first attempt.
func Backup(ctx context.Context, cfg config.Config, outDir string, wait time.Duration) (BackupResult, error) {
	store, err := openConfiguredStore(ctx, cfg, wait)
	if err != nil {
		return BackupResult{}, err
	}

	result, err := writeSnapshot(store, outDir)
	return result, errors.Join(err, store.Close())
}

func writeSnapshot(store *recordstore.Store, outDir string) (BackupResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return BackupResult{}, err
	}

	name := fmt.Sprintf("status-%s%s", ksuid.New().String(), snapshotExt)
	finalPath := filepath.Join(outDir, name)

	tmp, err := os.CreateTemp(outDir, name+".*.tmp")
	if err != nil {
		return BackupResult{}, err
	}
	defer os.Remove(tmp.Name())

	if err := store.Snapshot(tmp); err != nil {
		return BackupResult{}, errors.Join(fmt.Errorf("snapshot: %w", err), tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return BackupResult{}, errors.Join(err, tmp.Close())
	}
	info, err := tmp.Stat()
	if err != nil {
		return BackupResult{}, errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return BackupResult{}, err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return BackupResult{}, err
	}

	return BackupResult{Path: finalPath, Size: info.Size()}, nil
}

// ReadStatus opens the configured store, reads the status of accountID and
// closes the store.
func ReadStatus(ctx context.Context, cfg config.Config, accountID string, wait time.Duration) (string, bool, error) {
	store, err := openConfiguredStore(ctx, cfg, wait)
	if err != nil {
		return "", false, err
	}

	msg, found, err := store.Get(accountID)
	return msg, found, errors.Join(err, store.Close())
}

func openConfiguredStore(ctx context.Context, cfg config.Config, wait time.Duration) (*recordstore.Store, error) {
	storeConf, err := cfg.Storage.RecordStoreConfig()
	if err != nil {
		return nil, err
	}

	open := func() (*recordstore.Store, error) {
		store, err := recordstore.Open(cfg.Storage.BaseDir, storeConf)
		if err != nil && !errors.Is(err, recordstore.ErrDatabaseDirInUse) {
			return nil, backoff.Permanent(err)
		}
		return store, err
	}

	if wait <= 0 {
		return backoff.Retry(ctx, open, backoff.WithMaxTries(1))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = lockRetryInterval
	bo.MaxInterval = wait
	return backoff.Retry(ctx, open,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(wait),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Info("[statusdb.cliapp] store busy, retrying",
				slog.String("namespace", storeConf.Namespace),
				slog.Duration("next", next),
				slog.Any("error", err))
		}))
}
