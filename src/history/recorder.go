// Package history appends audit entries after workflow mutations have been written.
package history

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/metrics"
	"exceptiontracker/src/model"
)

// Store persists history entries.
type Store interface {
	CreateHistory(ctx context.Context, entry *model.ExceptionHistory) error
}

// Recorder writes one history entry per successful mutation. Failures are
// logged and counted but never returned: the primary write has already
// committed and must not be reported as failed.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, now: now}
}

// Entry describes a mutation to record.
type Entry struct {
	ExceptionID uint
	Action      model.HistoryAction
	PerformedBy uint
	OldValues   model.Values
	NewValues   model.Values
	Description string
}

// Record appends e. It returns the stored entry, or nil when the write failed.
func (r *Recorder) Record(ctx context.Context, e Entry) *model.ExceptionHistory {
	entry := &model.ExceptionHistory{
		ExceptionID: e.ExceptionID,
		Action:      e.Action,
		PerformedBy: e.PerformedBy,
		OldValues:   e.OldValues,
		NewValues:   e.NewValues,
		Description: e.Description,
		CreatedAt:   r.now().UTC(),
	}

	if err := r.store.CreateHistory(ctx, entry); err != nil {
		metrics.HistoryWriteFailures.WithLabelValues(string(e.Action)).Inc()
		logger.WithFields(map[string]interface{}{
			"service":      "history",
			"exception_id": e.ExceptionID,
			"action":       e.Action,
			"performed_by": e.PerformedBy,
		}).WithError(err).Error("Failed to record history entry")
		return nil
	}
	return entry
}
