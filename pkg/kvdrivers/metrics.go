package kvdrivers

import (
	"time"

	"github.com/ankur-anand/statusdb/pkg/umetrics"
	"github.com/uber-go/tally/v4"
)

// MetricsTracker provides a structured way to record operational metrics.
type MetricsTracker struct {
	opScopes map[string]tally.Scope
	root     tally.Scope
}

// NewMetricsTracker creates a MetricsTracker on the global kvdrivers scope.
func NewMetricsTracker(db, namespace string) *MetricsTracker {
	return NewScopedMetricsTracker(umetrics.GetScope("kvdrivers"), db, namespace)
}

// NewScopedMetricsTracker creates a MetricsTracker using a provided tally.Scope.
func NewScopedMetricsTracker(scope tally.Scope, db, namespace string) *MetricsTracker {
	baseScope := scope.Tagged(map[string]string{"db": db, "namespace": namespace})

	opScopes := make(map[string]tally.Scope, 4)
	for _, op := range []string{OpGet, OpSet, OpScan, OpMetadata} {
		opScopes[op] = baseScope.Tagged(map[string]string{"op": op})
	}

	return &MetricsTracker{
		opScopes: opScopes,
		root:     baseScope,
	}
}

// RecordOp logs operation count and latency.
func (m *MetricsTracker) RecordOp(op string, start time.Time) {
	if s, ok := m.opScopes[op]; ok {
		s.Counter("ops_total").Inc(1)
		s.Timer("ops_latency").Record(time.Since(start))
	}
}

// RecordMiss counts a lookup for a key that is not stored.
func (m *MetricsTracker) RecordMiss(op string) {
	if s, ok := m.opScopes[op]; ok {
		s.Counter("ops_miss_total").Inc(1)
	}
}

// RecordError increments the error counter for a given operation.
func (m *MetricsTracker) RecordError(op string) {
	if s, ok := m.opScopes[op]; ok {
		s.Counter("ops_error_total").Inc(1)
	}
}

// RecordSnapshot logs snapshot metrics.
func (m *MetricsTracker) RecordSnapshot(start time.Time) {
	m.root.Counter("snapshot_total").Inc(1)
	m.root.Timer("snapshot_latency").Record(time.Since(start))
}

func (m *MetricsTracker) recordOpResult(op string, start time.Time, err error) {
	switch err {
	case nil:
		m.RecordOp(op, start)
	case ErrKeyNotFound:
		m.RecordOp(op, start)
		m.RecordMiss(op)
	default:
		m.RecordError(op)
	}
}
