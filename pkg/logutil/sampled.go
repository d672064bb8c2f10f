// Package logutil builds the process slog handler.
package logutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"strings"
)

var ErrUnknownLevel = errors.New("unknown log level")

// SampledHandler drops records below minLevel and keeps only a percentage of
// records at the levels listed in levelPercents. Levels without a rule are
// always kept.
type SampledHandler struct {
	handler       slog.Handler
	levelPercents map[slog.Level]float64
	minLevel      slog.Level
}

// NewSampledLogger wraps handler with level sampling.
func NewSampledLogger(levelPercents map[slog.Level]float64, handler slog.Handler, minLevel slog.Level) *slog.Logger {
	return slog.New(&SampledHandler{
		handler:       handler,
		levelPercents: maps.Clone(levelPercents),
		minLevel:      minLevel,
	})
}

func (h *SampledHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}

	percent, ok := h.levelPercents[level]
	if !ok {
		return true
	}
	return rand.Float64()*100 < percent
}

func (h *SampledHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *SampledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SampledHandler{
		handler:       h.handler.WithAttrs(attrs),
		levelPercents: h.levelPercents,
		minLevel:      h.minLevel,
	}
}

func (h *SampledHandler) WithGroup(name string) slog.Handler {
	return &SampledHandler{
		handler:       h.handler.WithGroup(name),
		levelPercents: h.levelPercents,
		minLevel:      h.minLevel,
	}
}

// ParseLevel maps debug, info, warn and error to a slog level.
// The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// ParseLevelPercents converts a level-name keyed sampling table.
// Percentages must be within [0, 100].
func ParseLevelPercents(in map[string]float64) (map[slog.Level]float64, error) {
	out := make(map[slog.Level]float64, len(in))
	for name, percent := range in {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("sampling percent for %q must be within [0, 100], got %v", name, percent)
		}
		out[level] = percent
	}
	return out, nil
}
