package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/hashicorp/go-metrics"
)

var (
	packageKey = []string{"contract"}

	mKeyCallTotal     = append(packageKey, "call", "total")
	mKeyCallDurations = append(packageKey, "call", "durations", "seconds")
	mKeyRejectedTotal = append(packageKey, "call", "rejected", "total")
)

// RecordStore is the persistent mapping the entry points operate on.
type RecordStore interface {
	Set(accountID, message string) error
	Get(accountID string) (string, bool, error)
	Namespace() string
}

var _ RecordStore = (*recordstore.Store)(nil)

// StatusMessage exposes the status entry points over one record store.
// The caller of each write is taken from the context, never from the payload.
type StatusMessage struct {
	store RecordStore
}

// NewStatusMessage returns the entry points bound to store.
func NewStatusMessage(store RecordStore) *StatusMessage {
	return &StatusMessage{store: store}
}

// SetStatus records message as the caller's status.
func (s *StatusMessage) SetStatus(ctx context.Context, message string) error {
	return s.set(ctx, msgcodec.Direct(message))
}

// SetStatusStructured decodes payload as a SetMessageInput envelope and
// records its msg field as the caller's status. A malformed payload leaves the
// caller's previous status untouched.
func (s *StatusMessage) SetStatusStructured(ctx context.Context, payload []byte) error {
	return s.set(ctx, msgcodec.Structured(payload))
}

// SetStatusText records payload, which must be valid UTF-8, as the caller's
// status.
func (s *StatusMessage) SetStatusText(ctx context.Context, payload []byte) error {
	return s.set(ctx, msgcodec.Text(payload))
}

// GetStatus returns the status of accountID. found is false when the account
// never set one.
func (s *StatusMessage) GetStatus(accountID string) (message string, found bool, err error) {
	startTime := time.Now()
	labels := []metrics.Label{{Name: "entry_point", Value: "get_status"}}
	defer metrics.MeasureSinceWithLabels(mKeyCallDurations, startTime, labels)
	metrics.IncrCounterWithLabels(mKeyCallTotal, 1, labels)

	return s.store.Get(accountID)
}

func (s *StatusMessage) set(ctx context.Context, in msgcodec.Input) error {
	startTime := time.Now()
	labels := []metrics.Label{{Name: "entry_point", Value: entryPoint(in.Kind())}}
	defer metrics.MeasureSinceWithLabels(mKeyCallDurations, startTime, labels)
	metrics.IncrCounterWithLabels(mKeyCallTotal, 1, labels)

	caller, ok := CallerFrom(ctx)
	if !ok {
		metrics.IncrCounterWithLabels(mKeyRejectedTotal, 1, labels)
		return ErrMissingCaller
	}

	message, err := in.Normalize()
	if err != nil {
		metrics.IncrCounterWithLabels(mKeyRejectedTotal, 1, labels)
		slog.Debug("[statusdb.contract] payload rejected",
			slog.String("event_type", "status.rejected"),
			slog.String("caller", caller),
			slog.String("kind", in.Kind().String()),
			slog.Int("payload_size", in.Size()),
			slog.Any("error", err),
		)
		return err
	}

	if err := s.store.Set(caller, message); err != nil {
		if errors.Is(err, recordstore.ErrEmptyAccountID) {
			return ErrMissingCaller
		}
		return fmt.Errorf("set status for %q: %w", caller, err)
	}

	slog.Debug("[statusdb.contract]",
		slog.String("event_type", "status.set"),
		slog.String("caller", caller),
		slog.String("kind", in.Kind().String()),
		slog.String("namespace", s.store.Namespace()),
	)
	return nil
}

func entryPoint(kind msgcodec.Kind) string {
	switch kind {
	case msgcodec.KindStructured:
		return "set_status_structured"
	case msgcodec.KindText:
		return "set_status_text"
	default:
		return "set_status"
	}
}
