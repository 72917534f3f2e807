package workflow

import (
	"context"
	"strings"
	"unicode/utf8"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/history"
	"exceptiontracker/src/model"
	"exceptiontracker/src/policy"
)

const maxCommentLength = 10000

// AddComment appends a comment to an exception. Comments do not depend on
// the workflow state. Staff cannot write internal comments.
func (s *Service) AddComment(ctx context.Context, actor model.Principal, id uint, text string, internal bool) (comment *model.ExceptionComment, err error) {
	defer observe("comment", &err)

	exc, err := s.load(ctx, actor, id, policy.ActionComment)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("comment text is required").With("field", "comment")
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return nil, apperr.Validation("comment is too long").With("max", maxCommentLength)
	}
	if internal && actor.Role == model.RoleStaff {
		return nil, apperr.Forbidden("staff cannot post internal comments")
	}

	comment = &model.ExceptionComment{
		ExceptionID: exc.ID,
		AuthorID:    actor.ID,
		Text:        text,
		IsInternal:  internal,
		CreatedAt:   s.clock(),
	}
	if err := s.logs.CreateComment(ctx, comment); err != nil {
		return nil, apperr.Internal(err, "failed to add comment")
	}

	s.history.Record(ctx, history.Entry{
		ExceptionID: exc.ID,
		Action:      model.ActionComment,
		PerformedBy: actor.ID,
		NewValues:   model.Values{"comment_id": comment.ID, "is_internal": internal},
		Description: "Comment added",
	})
	return comment, nil
}

// ListComments returns the comments visible to actor, oldest first.
func (s *Service) ListComments(ctx context.Context, actor model.Principal, id uint) ([]model.ExceptionComment, error) {
	if _, err := s.load(ctx, actor, id, policy.ActionView); err != nil {
		return nil, err
	}
	comments, err := s.logs.ListComments(ctx, id, actor.Role != model.RoleStaff)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list comments")
	}
	return comments, nil
}

// History returns the audit trail of an exception, oldest first.
func (s *Service) History(ctx context.Context, actor model.Principal, id uint) ([]model.ExceptionHistory, error) {
	if _, err := s.load(ctx, actor, id, policy.ActionView); err != nil {
		return nil, err
	}
	entries, err := s.logs.ListHistory(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load history")
	}
	return entries, nil
}

// Escalations returns the escalation records of an exception, oldest first.
func (s *Service) Escalations(ctx context.Context, actor model.Principal, id uint) ([]model.ExceptionEscalation, error) {
	if _, err := s.load(ctx, actor, id, policy.ActionView); err != nil {
		return nil, err
	}
	items, err := s.logs.ListEscalations(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load escalations")
	}
	return items, nil
}

// ListSLARules returns every configured SLA rule.
func (s *Service) ListSLARules(ctx context.Context) ([]model.SLARule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list SLA rules")
	}
	return rules, nil
}

// UpsertSLARule sets the resolution budget for a severity. Existing due dates
// are not recalculated.
func (s *Service) UpsertSLARule(ctx context.Context, actor model.Principal, severity model.Severity, hours int, active bool) (rule *model.SLARule, err error) {
	defer observe("upsert_sla_rule", &err)

	if err := policy.Authorize(actor, policy.ActionManageSLA, nil); err != nil {
		return nil, err
	}
	if !severity.Valid() {
		return nil, apperr.Validation("invalid severity").With("severity", severity)
	}
	if hours <= 0 {
		return nil, apperr.Validation("resolution_time_hours must be positive").With("resolution_time_hours", hours)
	}

	now := s.clock()
	rule = &model.SLARule{
		Severity:            severity,
		ResolutionTimeHours: hours,
		Active:              active,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.rules.Upsert(ctx, rule); err != nil {
		return nil, apperr.Internal(err, "failed to save SLA rule")
	}
	return rule, nil
}
