package workflow

import (
	"context"
	"strconv"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/history"
	"exceptiontracker/src/model"
	"exceptiontracker/src/notify"
	"exceptiontracker/src/policy"
)

// EscalateInput describes an escalation request. TargetLevel defaults to the
// current level plus one.
type EscalateInput struct {
	Reason      string `json:"reason"`
	TargetLevel *int   `json:"target_level,omitempty"`
	EscalatedTo *uint  `json:"escalated_to,omitempty"`
}

// Escalate raises the escalation level of an exception and optionally hands it
// to a new owner. The status is left untouched.
func (s *Service) Escalate(ctx context.Context, actor model.Principal, id uint, in EscalateInput) (exc *model.Exception, err error) {
	defer observe("escalate", &err)

	exc, err = s.load(ctx, actor, id, policy.ActionEscalate)
	if err != nil {
		return nil, err
	}

	newLevel := exc.EscalationLevel + 1
	if in.TargetLevel != nil {
		newLevel = *in.TargetLevel
	}
	if newLevel > model.MaxEscalationLevel {
		return nil, apperr.Validation("maximum escalation level reached").
			With("current_level", exc.EscalationLevel).
			With("requested_level", newLevel)
	}
	if newLevel < 1 || newLevel < exc.EscalationLevel {
		return nil, apperr.Validation("escalation level cannot decrease").
			With("current_level", exc.EscalationLevel).
			With("requested_level", newLevel)
	}
	if in.EscalatedTo != nil && *in.EscalatedTo == 0 {
		return nil, apperr.Validation("escalated_to must reference a user").With("field", "escalated_to")
	}
	if _, err := Next(exc.Status, EventEscalate, ""); err != nil {
		return nil, err
	}

	now := s.clock()
	previousLevel := exc.EscalationLevel
	previousAssignee := exc.AssignedTo
	fields := map[string]interface{}{
		"escalation_level":  newLevel,
		"escalation_count":  exc.EscalationCount + 1,
		"last_escalated_at": now,
		"updated_at":        now,
	}
	if in.EscalatedTo != nil {
		fields["assigned_to"] = *in.EscalatedTo
	}

	ok, err := s.exceptions.UpdateEscalation(ctx, id, exc.EscalationLevel, exc.EscalationCount, fields)
	if err != nil {
		return nil, apperr.Internal(err, "failed to escalate exception")
	}
	if !ok {
		return nil, apperr.Validation("exception was modified concurrently, retry the escalation").
			With("id", id)
	}

	exc.EscalationLevel = newLevel
	exc.EscalationCount++
	exc.LastEscalatedAt = &now
	exc.UpdatedAt = now
	if in.EscalatedTo != nil {
		to := *in.EscalatedTo
		exc.AssignedTo = &to
	}

	record := &model.ExceptionEscalation{
		ExceptionID:   id,
		EscalatedFrom: previousAssignee,
		EscalatedTo:   in.EscalatedTo,
		EscalatedBy:   actor.ID,
		Level:         newLevel,
		Reason:        strings.TrimSpace(in.Reason),
		Status:        model.EscalationStatusActive,
		EscalatedAt:   now,
	}
	if err := s.logs.CreateEscalation(ctx, record); err != nil {
		logger.WithFields(map[string]interface{}{
			"service":      "workflow",
			"op":           "Escalate",
			"exception_id": id,
		}).WithError(err).Error("Failed to store escalation record")
	}

	newValues := model.Values{"escalation_level": newLevel, "escalation_count": exc.EscalationCount}
	oldValues := model.Values{"escalation_level": previousLevel, "escalation_count": exc.EscalationCount - 1}
	if in.EscalatedTo != nil {
		oldValues["assigned_to"] = previousAssignee
		newValues["assigned_to"] = *in.EscalatedTo
	}
	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionEscalate,
		PerformedBy: actor.ID,
		OldValues:   oldValues,
		NewValues:   newValues,
		Description: escalationDescription(newLevel, record.Reason),
	})

	if s.notifier != nil {
		ev := notify.EscalationEvent{
			ExceptionID:     id,
			ExceptionNumber: exc.Number,
			Title:           exc.Title,
			Severity:        exc.Severity,
			VerticalID:      exc.VerticalID,
			Level:           newLevel,
			EscalatedFrom:   previousAssignee,
			EscalatedTo:     in.EscalatedTo,
			EscalatedBy:     actor.ID,
			Reason:          record.Reason,
			EscalatedAt:     now,
		}
		s.pending.Add(1)
		go s.deliver(context.WithoutCancel(ctx), ev)
	}

	return exc, nil
}

// notifyTimeout bounds one delivery including the notifier's own retries.
const notifyTimeout = 30 * time.Second

// deliver sends ev outside the request. Failures are only logged.
func (s *Service) deliver(ctx context.Context, ev notify.EscalationEvent) {
	defer s.pending.Done()

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyEscalation(ctx, ev); err != nil {
		logger.WithFields(map[string]interface{}{
			"service":      "workflow",
			"op":           "Escalate",
			"exception_id": ev.ExceptionID,
			"level":        ev.Level,
		}).WithError(err).Warn("Escalation notification failed")
	}
}

func escalationDescription(level int, reason string) string {
	desc := "Escalated to level " + strconv.Itoa(level)
	if reason != "" {
		desc += ": " + reason
	}
	return desc
}
