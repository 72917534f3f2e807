package workflow

import (
	"context"
	"strings"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/history"
	"exceptiontracker/src/model"
	"exceptiontracker/src/policy"
)

// Update edits descriptive and ownership fields. It never changes status;
// only the fields that actually changed are written and recorded.
func (s *Service) Update(ctx context.Context, actor model.Principal, id uint, patch model.ExceptionPatch) (exc *model.Exception, err error) {
	defer observe("update", &err)

	exc, err = s.load(ctx, actor, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if _, err := Next(exc.Status, EventEdit, ""); err != nil {
		return nil, err
	}
	if err := s.checkPatch(actor, exc, patch); err != nil {
		return nil, err
	}

	before := snapshot(exc)
	applyPatch(exc, patch)
	after := snapshot(exc)
	delete(before, "status")
	delete(after, "status")

	oldValues, newValues := history.Diff(before, after)
	if len(newValues) == 0 {
		return exc, nil
	}

	now := s.clock()
	fields := make(map[string]interface{}, len(newValues)+1)
	for k := range newValues {
		fields[k] = columnValue(exc, k)
	}
	fields["updated_at"] = now
	if _, ok := newValues["assigned_to"]; ok {
		fields["assigned_date"] = now
		exc.AssignedDate = &now
	}

	if err := s.exceptions.UpdateFields(ctx, id, fields); err != nil {
		return nil, apperr.Internal(err, "failed to update exception")
	}
	exc.UpdatedAt = now

	s.history.Record(ctx, history.Entry{
		ExceptionID: id,
		Action:      model.ActionUpdate,
		PerformedBy: actor.ID,
		OldValues:   oldValues,
		NewValues:   newValues,
		Description: "Exception updated",
	})
	return exc, nil
}

func (s *Service) checkPatch(actor model.Principal, exc *model.Exception, p model.ExceptionPatch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperr.Validation("title cannot be empty").With("field", "title")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return apperr.Validation("description cannot be empty").With("field", "description")
	}
	if p.Severity != nil && !p.Severity.Valid() {
		return apperr.Validation("invalid severity").With("severity", *p.Severity)
	}
	if p.VerticalID != nil {
		if *p.VerticalID == 0 {
			return apperr.Validation("vertical_id is required").With("field", "vertical_id")
		}
		if *p.VerticalID != exc.VerticalID && !actor.Role.IsGlobal() {
			return apperr.Forbidden("only global roles can move an exception to another vertical")
		}
	}
	if p.AssignedTo != nil && !exc.IsAssignedTo(*p.AssignedTo) {
		// Changing the owner is an assignment decision.
		if err := policy.Authorize(actor, policy.ActionReassign, exc); err != nil {
			return err
		}
	}
	return nil
}

func applyPatch(exc *model.Exception, p model.ExceptionPatch) {
	if p.Title != nil {
		exc.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		exc.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		exc.Category = strings.TrimSpace(*p.Category)
	}
	if p.Severity != nil {
		exc.Severity = *p.Severity
	}
	if p.VerticalID != nil {
		exc.VerticalID = *p.VerticalID
	}
	if p.ProgramID != nil {
		v := *p.ProgramID
		exc.ProgramID = &v
	}
	if p.AssignedTo != nil {
		v := *p.AssignedTo
		exc.AssignedTo = &v
	}
	if p.Priority != nil {
		exc.Priority = *p.Priority
	}
	if p.DueDate != nil {
		v := p.DueDate.UTC()
		exc.DueDate = &v
	}
	if p.Tags != nil {
		exc.Tags = model.StringList(*p.Tags)
	}
	if p.Notes != nil {
		exc.Notes = *p.Notes
	}
}

// columnValue returns the value to persist for a snapshot key.
func columnValue(exc *model.Exception, key string) interface{} {
	switch key {
	case "title":
		return exc.Title
	case "description":
		return exc.Description
	case "category":
		return exc.Category
	case "severity":
		return exc.Severity
	case "vertical_id":
		return exc.VerticalID
	case "program_id":
		return exc.ProgramID
	case "assigned_to":
		return exc.AssignedTo
	case "priority":
		return exc.Priority
	case "due_date":
		return exc.DueDate
	case "tags":
		return exc.Tags
	case "notes":
		return exc.Notes
	}
	return nil
}
