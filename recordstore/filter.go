package recordstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankur-anand/statusdb/pkg/kvdrivers"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-metrics"
)

const (
	filterSourceLoaded  = "loaded"
	filterSourceRebuilt = "rebuilt"
)

// loadFilter restores the negative lookup filter. A filter is only trusted if
// the previous owner closed the store cleanly; otherwise every record key is
// scanned back in, so the filter never reports a stored key as absent.
func (s *Store) loadFilter() (string, error) {
	clean, err := s.dataStore.RetrieveMetadata(sysKeyClean)
	if err != nil && !errors.Is(err, kvdrivers.ErrKeyNotFound) {
		return "", err
	}

	if len(clean) == 1 && clean[0] == 1 {
		data, err := s.dataStore.RetrieveMetadata(sysKeyFilter)
		if err != nil && !errors.Is(err, kvdrivers.ErrKeyNotFound) {
			return "", err
		}
		if len(data) != 0 {
			filter := &bloom.BloomFilter{}
			if _, err := filter.ReadFrom(bytes.NewReader(data)); err != nil {
				slog.Warn("[statusdb.recordstore] failed to deserialize bloom filter, rebuilding",
					slog.String("namespace", s.namespace),
					slog.Any("error", err))
			} else {
				s.filter = filter
				return filterSourceLoaded, nil
			}
		}
	}

	if err := s.rebuildFilter(); err != nil {
		return "", err
	}
	return filterSourceRebuilt, nil
}

func (s *Store) rebuildFilter() error {
	startTime := time.Now()
	filter := bloom.NewWithEstimates(s.conf.FilterExpectedItems, s.conf.FilterFalsePositiveRate)

	var records uint
	err := s.dataStore.ForEachKV(func(key, _ []byte) error {
		filter.Add(key)
		records++
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild bloom filter: %w", err)
	}

	if records > s.conf.FilterExpectedItems {
		slog.Warn("[statusdb.recordstore] record count exceeds bloom_expected_items, filter precision degraded",
			slog.String("namespace", s.namespace),
			slog.Uint64("records", uint64(records)),
			slog.Uint64("expected_items", uint64(s.conf.FilterExpectedItems)))
	}

	s.filter = filter
	metrics.IncrCounterWithLabels(mKeyFilterRebuildRecs, float32(records), s.metricsLabel)
	metrics.MeasureSinceWithLabels(mKeyFilterRebuildDur, startTime, s.metricsLabel)
	slog.Info("[statusdb.recordstore]",
		slog.String("event_type", "filter.rebuilt"),
		slog.String("namespace", s.namespace),
		slog.Uint64("records", uint64(records)),
		slog.Duration("duration", time.Since(startTime)),
	)
	return nil
}

func (s *Store) saveFilter() error {
	var buf bytes.Buffer
	if _, err := s.filter.WriteTo(&buf); err != nil {
		return err
	}

	slog.Debug("[statusdb.recordstore] saving bloom filter",
		slog.String("namespace", s.namespace),
		slog.String("size", humanize.Bytes(uint64(buf.Len()))))
	return s.dataStore.StoreMetadata(sysKeyFilter, buf.Bytes())
}
