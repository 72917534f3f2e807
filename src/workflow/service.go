// Package workflow implements the exception state machine: creation,
// assignment, resolution, closing, escalation and edits.
package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/history"
	"exceptiontracker/src/metrics"
	"exceptiontracker/src/model"
	"exceptiontracker/src/notify"
	"exceptiontracker/src/policy"
	"exceptiontracker/src/sla"
)

// ExceptionStore is the persistence the workflow needs for exception rows.
// FindByID returns (nil, nil) when the id does not exist.
type ExceptionStore interface {
	Create(ctx context.Context, exc *model.Exception) error
	FindByID(ctx context.Context, id uint) (*model.Exception, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	UpdateEscalation(ctx context.Context, id uint, expectedLevel, expectedCount int, fields map[string]interface{}) (bool, error)
	Delete(ctx context.Context, id uint) error
}

// LogStore persists the append-only logs attached to an exception.
type LogStore interface {
	history.Store
	ListHistory(ctx context.Context, exceptionID uint) ([]model.ExceptionHistory, error)
	CreateComment(ctx context.Context, comment *model.ExceptionComment) error
	ListComments(ctx context.Context, exceptionID uint, includeInternal bool) ([]model.ExceptionComment, error)
	CreateEscalation(ctx context.Context, esc *model.ExceptionEscalation) error
	ListEscalations(ctx context.Context, exceptionID uint) ([]model.ExceptionEscalation, error)
}

// SLARuleStore reads and maintains SLA rules.
type SLARuleStore interface {
	sla.RuleSource
	List(ctx context.Context) ([]model.SLARule, error)
	Upsert(ctx context.Context, rule *model.SLARule) error
}

// NumberGenerator supplies unique human-readable exception numbers.
type NumberGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

// EscalationNotifier is told about every successful escalation.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, ev notify.EscalationEvent) error
}

// Service runs workflow operations. It holds no per-exception state; every
// call loads the row, checks policy and transition table, writes, then
// records history.
type Service struct {
	exceptions ExceptionStore
	logs       LogStore
	rules      SLARuleStore
	numbers    NumberGenerator
	notifier   EscalationNotifier
	history    *history.Recorder
	now        func() time.Time

	// in-flight escalation notifications
	pending sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier registers a notifier for escalations.
func WithNotifier(n EscalationNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(exceptions ExceptionStore, logs LogStore, rules SLARuleStore, numbers NumberGenerator, opts ...Option) *Service {
	s := &Service{
		exceptions: exceptions,
		logs:       logs,
		rules:      rules,
		numbers:    numbers,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = history.NewRecorder(logs, s.now)
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Drain waits for in-flight escalation notifications, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.clock()
}

// Create opens a new exception owned by actor.
func (s *Service) Create(ctx context.Context, actor model.Principal, in model.CreateExceptionInput) (exc *model.Exception, err error) {
	defer observe("create", &err)

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return nil, apperr.Validation("title is required").With("field", "title")
	}
	if in.Description == "" {
		return nil, apperr.Validation("description is required").With("field", "description")
	}
	if in.Severity == "" {
		in.Severity = model.SeverityMedium
	}
	if !in.Severity.Valid() {
		return nil, apperr.Validation("invalid severity").With("severity", in.Severity)
	}
	if in.VerticalID == 0 {
		return nil, apperr.Validation("vertical_id is required").With("field", "vertical_id")
	}

	now := s.clock()
	exc = &model.Exception{
		Title:       in.Title,
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Severity:    in.Severity,
		Tags:        model.StringList(in.Tags),
		Notes:       in.Notes,
		Priority:    in.Priority,
		VerticalID:  in.VerticalID,
		ProgramID:   in.ProgramID,
		CreatedBy:   actor.ID,
		AssignedTo:  in.AssignedTo,
		Status:      model.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := policy.Authorize(actor, policy.ActionCreate, exc); err != nil {
		return nil, err
	}
	if exc.AssignedTo != nil {
		exc.AssignedDate = &now
	}

	if in.DueDate != nil {
		due := in.DueDate.UTC()
		exc.DueDate = &due
	} else {
		due, err := sla.DueDate(ctx, s.rules, exc.Severity, now)
		if err != nil {
			return nil, apperr.Internal(err, "failed to load SLA rule")
		}
		exc.DueDate = due
	}

	number, err := s.numbers.Next(ctx, now)
	if err != nil {
		return nil, apperr.Internal(err, "failed to generate exception number")
	}
	exc.Number = number

	if err := s.exceptions.Create(ctx, exc); err != nil {
		return nil, apperr.Internal(err, "failed to create exception")
	}

	s.history.Record(ctx, history.Entry{
		ExceptionID: exc.ID,
		Action:      model.ActionCreate,
		PerformedBy: actor.ID,
		NewValues:   snapshot(exc),
		Description: "Exception " + exc.Number + " created",
	})

	logger.WithFields(map[string]interface{}{
		"service":      "workflow",
		"op":           "Create",
		"exception_id": exc.ID,
		"number":       exc.Number,
		"vertical_id":  exc.VerticalID,
	}).Info("Exception created")

	return exc, nil
}

// Get returns a single exception visible to actor.
func (s *Service) Get(ctx context.Context, actor model.Principal, id uint) (*model.Exception, error) {
	return s.load(ctx, actor, id, policy.ActionView)
}

// Assign hands the exception to assignedTo and moves it to in_progress,
// whatever its current status.
func (s *Service) Assign(ctx context.Context, actor model.Principal, id uint, assignedTo uint) (exc *model.Exception, err error) {
	defer observe("assign", &err)

	if assignedTo == 0 {
		return nil, apperr.Validation("assigned_to is required").With("field", "assigned_to")
	}
	exc, err = s.load(ctx, actor, id, policy.ActionAssign)
	if err != nil {
		return nil, err
	}
	next, err := Next(exc.Status, EventAssign, "")
	if err != nil {
		return nil, err
	}

	now := s.clock()
	before := model.Values{"status": exc.Status, "assigned_to": exc.AssignedTo}
	fields := map[string]interface{}{
		"assigned_to":   assignedTo,
		"assigned_date": now,
		"status":        next,
		"updated_at":    now,
	}
	if err := s.exceptions.UpdateFields(ctx, id, fields); err != nil {
		return nil, apperr.Internal(err, "failed to assign exception")
	}

	exc.AssignedTo = &assignedTo
	exc.AssignedDate = &now
	exc.Status = next
	exc.UpdatedAt = now

	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionAssign,
		PerformedBy: actor.ID,
		OldValues:   before,
		NewValues:   model.Values{"status": next, "assigned_to": assignedTo},
		Description: "Exception assigned",
	})
	return exc, nil
}

// Reassign changes the assignee without touching the status.
func (s *Service) Reassign(ctx context.Context, actor model.Principal, id uint, assignedTo uint) (exc *model.Exception, err error) {
	defer observe("reassign", &err)

	if assignedTo == 0 {
		return nil, apperr.Validation("assigned_to is required").With("field", "assigned_to")
	}
	exc, err = s.load(ctx, actor, id, policy.ActionReassign)
	if err != nil {
		return nil, err
	}
	if exc.IsAssignedTo(assignedTo) {
		return nil, apperr.Validation("exception is already assigned to this user").
			With("assigned_to", assignedTo)
	}
	if _, err := Next(exc.Status, EventReassign, ""); err != nil {
		return nil, err
	}

	now := s.clock()
	previous := exc.AssignedTo
	fields := map[string]interface{}{
		"assigned_to":   assignedTo,
		"assigned_date": now,
		"updated_at":    now,
	}
	if err := s.exceptions.UpdateFields(ctx, id, fields); err != nil {
		return nil, apperr.Internal(err, "failed to reassign exception")
	}

	exc.AssignedTo = &assignedTo
	exc.AssignedDate = &now
	exc.UpdatedAt = now

	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionReassign,
		PerformedBy: actor.ID,
		OldValues:   model.Values{"assigned_to": previous},
		NewValues:   model.Values{"assigned_to": assignedTo},
		Description: "Exception reassigned",
	})
	return exc, nil
}

// UpdateStatus moves the exception along the generic transition table.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Principal, id uint, status model.ExceptionStatus) (exc *model.Exception, err error) {
	defer observe("update_status", &err)

	exc, err = s.load(ctx, actor, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.StatusAction(exc.Status, status), exc); err != nil {
		return nil, err
	}
	next, err := Next(exc.Status, EventSetStatus, status)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	previous := exc.Status
	fields := map[string]interface{}{"status": next, "updated_at": now}
	switch next {
	case model.StatusResolved:
		fields["resolved_at"] = now
		fields["resolved_by"] = actor.ID
		exc.ResolvedAt, exc.ResolvedBy = &now, uintPtr(actor.ID)
	case model.StatusClosed:
		fields["closed_at"] = now
		fields["closed_by"] = actor.ID
		exc.ClosedAt, exc.ClosedBy = &now, uintPtr(actor.ID)
	}
	if err := s.exceptions.UpdateFields(ctx, id, fields); err != nil {
		return nil, apperr.Internal(err, "failed to update exception status")
	}
	exc.Status = next
	exc.UpdatedAt = now

	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionUpdate,
		PerformedBy: actor.ID,
		OldValues:   model.Values{"status": previous},
		NewValues:   model.Values{"status": next},
		Description: "Status changed from " + string(previous) + " to " + string(next),
	})
	return exc, nil
}

// Resolve marks an open or in-progress exception as resolved.
func (s *Service) Resolve(ctx context.Context, actor model.Principal, id uint, notes string) (exc *model.Exception, err error) {
	defer observe("resolve", &err)

	exc, err = s.load(ctx, actor, id, policy.ActionResolve)
	if err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, apperr.Validation("resolution notes are required").With("field", "resolution_notes")
	}
	next, err := Next(exc.Status, EventResolve, "")
	if err != nil {
		return nil, err
	}

	now := s.clock()
	previous := exc.Status
	fields := map[string]interface{}{
		"status":           next,
		"resolution_notes": notes,
		"resolved_at":      now,
		"resolved_by":      actor.ID,
		"updated_at":       now,
	}
	if err := s.exceptions.UpdateFields(ctx, id, fields); err != nil {
		return nil, apperr.Internal(err, "failed to resolve exception")
	}

	exc.Status = next
	exc.ResolutionNotes = notes
	exc.ResolvedAt = &now
	exc.ResolvedBy = uintPtr(actor.ID)
	exc.UpdatedAt = now

	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionResolve,
		PerformedBy: actor.ID,
		OldValues:   model.Values{"status": previous},
		NewValues:   model.Values{"status": next, "resolution_notes": notes},
		Description: "Exception resolved",
	})
	return exc, nil
}

// Close finalises a resolved exception.
func (s *Service) Close(ctx context.Context, actor model.Principal, id uint) (exc *model.Exception, err error) {
	defer observe("close", &err)

	exc, err = s.load(ctx, actor, id, policy.ActionClose)
	if err != nil {
		return nil, err
	}
	next, err := Next(exc.Status, EventClose, "")
	if err != nil {
		return nil, err
	}

	now := s.clock()
	fields := map[string]interface{}{
		"status":     next,
		"closed_at":  now,
		"closed_by":  actor.ID,
		"updated_at": now,
	}
	if err := s.exceptions.UpdateFields(ctx, id, fields); err != nil {
		return nil, apperr.Internal(err, "failed to close exception")
	}

	previous := exc.Status
	exc.Status = next
	exc.ClosedAt = &now
	exc.ClosedBy = uintPtr(actor.ID)
	exc.UpdatedAt = now

	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionClose,
		PerformedBy: actor.ID,
		OldValues:   model.Values{"status": previous},
		NewValues:   model.Values{"status": next},
		Description: "Exception closed",
	})
	return exc, nil
}

// Delete permanently removes an exception and returns the removed row.
func (s *Service) Delete(ctx context.Context, actor model.Principal, id uint) (exc *model.Exception, err error) {
	defer observe("delete", &err)

	exc, err = s.load(ctx, actor, id, policy.ActionDelete)
	if err != nil {
		return nil, err
	}
	if err := s.exceptions.Delete(ctx, id); err != nil {
		return nil, apperr.Internal(err, "failed to delete exception")
	}

	logger.WithFields(map[string]interface{}{
		"service":      "workflow",
		"op":           "Delete",
		"exception_id": id,
		"number":       exc.Number,
		"deleted_by":   actor.ID,
	}).Warn("Exception deleted")

	return exc, nil
}

// load fetches id and checks that actor may perform action on it. A missing
// row is reported before any permission check.
func (s *Service) load(ctx context.Context, actor model.Principal, id uint, action policy.Action) (*model.Exception, error) {
	exc, err := s.exceptions.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load exception")
	}
	if exc == nil {
		return nil, apperr.NotFound("exception not found").With("id", id)
	}
	if err := policy.Authorize(actor, action, exc); err != nil {
		return nil, err
	}
	return exc, nil
}

func observe(op string, err *error) {
	result := "ok"
	if *err != nil {
		result = apperr.KindOf(*err).String()
	}
	metrics.WorkflowOperations.WithLabelValues(op, result).Inc()
}

func snapshot(exc *model.Exception) model.Values {
	return model.Values{
		"title":       exc.Title,
		"description": exc.Description,
		"category":    exc.Category,
		"severity":    exc.Severity,
		"vertical_id": exc.VerticalID,
		"program_id":  exc.ProgramID,
		"assigned_to": exc.AssignedTo,
		"priority":    exc.Priority,
		"due_date":    exc.DueDate,
		"tags":        []string(exc.Tags),
		"notes":       exc.Notes,
		"status":      exc.Status,
	}
}

func uintPtr(v uint) *uint { return &v }
