package cliapp

import (
	"context"
	"log/slog"
	"time"

	"github.com/ankur-anand/statusdb/recordstore"
)

// StatsLoggerService periodically logs the record store counters.
type StatsLoggerService struct {
	store    *recordstore.Store
	interval time.Duration
}

func NewStatsLoggerService(interval time.Duration) *StatsLoggerService {
	return &StatsLoggerService{interval: interval}
}

func (o *StatsLoggerService) Name() string {
	return "stats-logger"
}

func (o *StatsLoggerService) Setup(ctx context.Context, deps *Dependencies) error {
	o.store = deps.Store
	if o.interval == 0 {
		o.interval = 1 * time.Minute
	}
	return nil
}

func (o *StatsLoggerService) Run(ctx context.Context) error {
	if o.store == nil {
		return nil
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.logStats()
		case <-ctx.Done():
			return nil
		}
	}
}

func (o *StatsLoggerService) logStats() {
	stats := o.store.Stats()
	slog.Info("[statusdb.cliapp]",
		slog.String("event_type", "store.stats.report"),
		slog.Group("store",
			slog.String("namespace", stats.Namespace),
			slog.String("engine", stats.Engine),
			slog.Uint64("sets", stats.Sets),
			slog.Uint64("gets", stats.Gets),
			slog.Uint64("get_misses", stats.GetMisses),
			slog.Uint64("filter_skips", stats.FilterSkips),
		),
	)
}

func (o *StatsLoggerService) Close(ctx context.Context) error {
	return nil
}
