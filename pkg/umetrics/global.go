package umetrics

import (
	"io"
	"sync"
	"time"

	"github.com/uber-go/tally/v4"
)

var (
	globalMu       sync.RWMutex
	globalRegistry = &Registry{scope: tally.NoopScope, commonTags: map[string]string{}}
)

// Scope is re-exported so callers don't need to import tally for signatures.
type Scope = tally.Scope

// Registry holds the global metrics configuration.
type Registry struct {
	scope      tally.Scope
	commonTags map[string]string
}

// Options for configuring the metrics registry.
type Options struct {
	Prefix         string
	Reporter       tally.CachedStatsReporter
	ReportInterval time.Duration
	CommonTags     map[string]string
	InitTime       time.Time
}

// Initialize the global metrics registry. Only the first call installs a
// reporter; later calls return a nil closer and leave the registry untouched.
// Until Initialize runs every scope is a no-op.
func Initialize(opts Options) (io.Closer, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRegistry.scope != tally.NoopScope {
		return nil, nil
	}

	if opts.InitTime.IsZero() {
		opts.InitTime = time.Now().UTC()
	}
	if opts.CommonTags == nil {
		opts.CommonTags = make(map[string]string)
	}

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         opts.Prefix,
		Tags:           opts.CommonTags,
		CachedReporter: opts.Reporter,
		Separator:      "_",
	}, opts.ReportInterval)

	scope.Gauge("process_start_time_seconds").Update(float64(opts.InitTime.Unix()))
	globalRegistry = &Registry{
		scope:      scope,
		commonTags: opts.CommonTags,
	}
	return closer, nil
}

// GetScope returns a scoped metrics collector for a specific package.
//
//nolint:ireturn
func GetScope(packageName string) tally.Scope {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRegistry.scope.SubScope(packageName)
}

// GetTaggedScope returns a scoped metrics collector with additional tags.
//
//nolint:ireturn
func GetTaggedScope(packageName string, tags map[string]string) tally.Scope {
	return GetScope(packageName).Tagged(tags)
}

// CommonTags returns a copy of the tags attached to every metric.
func CommonTags() map[string]string {
	globalMu.RLock()
	defer globalMu.RUnlock()
	out := make(map[string]string, len(globalRegistry.commonTags))
	for k, v := range globalRegistry.commonTags {
		out[k] = v
	}
	return out
}
