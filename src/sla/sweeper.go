package sla

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/metrics"
)

// BreachStore flags overdue active exceptions and reports which ids changed.
type BreachStore interface {
	MarkSLABreaches(ctx context.Context, now time.Time) ([]uint, error)
}

// Sweeper flags exceptions whose due date lapsed while still open or in progress.
// Running it again without time passing changes nothing.
type Sweeper struct {
	store BreachStore
	now   func() time.Time
}

func NewSweeper(store BreachStore, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, now: now}
}

// CheckSLABreach runs one sweep and returns the ids newly flagged by it.
func (s *Sweeper) CheckSLABreach(ctx context.Context) ([]uint, error) {
	now := s.now().UTC()

	ids, err := s.store.MarkSLABreaches(ctx, now)
	if err != nil {
		metrics.SLASweeps.WithLabelValues("error").Inc()
		return nil, apperr.Internal(err, "failed to flag SLA breaches")
	}

	metrics.SLASweeps.WithLabelValues("ok").Inc()
	metrics.SLABreachesFlagged.Add(float64(len(ids)))

	logger.WithFields(map[string]interface{}{
		"service": "sla",
		"op":      "CheckSLABreach",
		"flagged": len(ids),
		"at":      now,
	}).Info("SLA sweep finished")

	return ids, nil
}
