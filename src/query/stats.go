package query

import (
	"context"

	"github.com/shopspring/decimal"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/model"
	"exceptiontracker/src/policy"
	"exceptiontracker/src/repository"
)

// Stats is the backlog summary of a set of exceptions.
type Stats struct {
	Total              int64                           `json:"total"`
	ByStatus           map[model.ExceptionStatus]int64 `json:"by_status"`
	BySeverity         map[model.Severity]int64        `json:"by_severity"`
	ByCategory         map[string]int64                `json:"by_category"`
	Open               int64                           `json:"open"`
	InProgress         int64                           `json:"in_progress"`
	Overdue            int64                           `json:"overdue"`
	SLABreached        int64                           `json:"sla_breached"`
	Priority           int64                           `json:"priority"`
	Escalated          int64                           `json:"escalated"`
	AvgResolutionHours decimal.Decimal                 `json:"avg_resolution_hours"`
}

// VerticalSummary is Stats for a single vertical.
type VerticalSummary struct {
	VerticalID uint `json:"vertical_id"`
	Stats
}

// Workload summarises what is assigned to one user.
type Workload struct {
	UserID         uint                            `json:"user_id"`
	Total          int64                           `json:"total"`
	ByStatus       map[model.ExceptionStatus]int64 `json:"by_status"`
	Priority       int64                           `json:"priority"`
	Overdue        int64                           `json:"overdue"`
	AvgOpenAgeDays decimal.Decimal                 `json:"avg_open_age_days"`
}

// GetStats aggregates every exception visible to actor, optionally narrowed
// to one vertical.
func (e *Engine) GetStats(ctx context.Context, actor model.Principal, verticalID *uint) (*Stats, error) {
	vertical, err := policy.ScopeVertical(actor, verticalID)
	if err != nil {
		return nil, err
	}
	agg, err := e.store.Aggregate(ctx, repository.ExceptionSearchOptions{VerticalID: vertical}, e.clock())
	if err != nil {
		return nil, apperr.Internal(err, "failed to aggregate exceptions for stats")
	}
	stats := statsFrom(agg)
	return &stats, nil
}

// GetVerticalSummary returns the stats of one vertical.
func (e *Engine) GetVerticalSummary(ctx context.Context, actor model.Principal, verticalID uint) (*VerticalSummary, error) {
	if verticalID == 0 {
		return nil, apperr.Validation("vertical_id is required").With("field", "vertical_id")
	}
	stats, err := e.GetStats(ctx, actor, &verticalID)
	if err != nil {
		return nil, err
	}
	return &VerticalSummary{VerticalID: verticalID, Stats: *stats}, nil
}

// GetUserWorkload summarises the exceptions assigned to userID. Staff may
// only look at their own workload; vertical leads see the part of it inside
// their vertical.
func (e *Engine) GetUserWorkload(ctx context.Context, actor model.Principal, userID uint, status *model.ExceptionStatus) (*Workload, error) {
	if userID == 0 {
		return nil, apperr.Validation("user id is required").With("field", "user_id")
	}
	if actor.Role == model.RoleStaff && actor.ID != userID {
		return nil, apperr.Forbidden("staff can only view their own workload")
	}
	if status != nil && !status.Valid() {
		return nil, apperr.Validation("invalid status").With("status", *status)
	}
	vertical, err := policy.ScopeVertical(actor, nil)
	if err != nil {
		return nil, err
	}

	agg, err := e.store.Aggregate(ctx, repository.ExceptionSearchOptions{
		AssignedTo: &userID,
		VerticalID: vertical,
		Status:     status,
	}, e.clock())
	if err != nil {
		return nil, apperr.Internal(err, "failed to aggregate workload")
	}

	w := &Workload{
		UserID:         userID,
		ByStatus:       make(map[model.ExceptionStatus]int64),
		Priority:       agg.Priority,
		Overdue:        agg.Overdue,
		AvgOpenAgeDays: average(agg.ActiveAgeHours/24, agg.Active),
	}
	for _, g := range agg.Groups {
		w.Total += g.Total
		w.ByStatus[g.Status] += g.Total
	}
	return w, nil
}

func statsFrom(agg *repository.ExceptionAggregate) Stats {
	s := Stats{
		ByStatus:           make(map[model.ExceptionStatus]int64),
		BySeverity:         make(map[model.Severity]int64),
		ByCategory:         make(map[string]int64),
		Overdue:            agg.Overdue,
		SLABreached:        agg.SLABreached,
		Priority:           agg.Priority,
		Escalated:          agg.Escalated,
		AvgResolutionHours: average(agg.ResolutionHours, agg.Resolved),
	}
	for _, g := range agg.Groups {
		s.Total += g.Total
		s.ByStatus[g.Status] += g.Total
		s.BySeverity[g.Severity] += g.Total
		if g.Category != "" {
			s.ByCategory[g.Category] += g.Total
		}
	}
	s.Open = s.ByStatus[model.StatusOpen]
	s.InProgress = s.ByStatus[model.StatusInProgress]
	return s
}

// average returns sum/n rounded to two places, or zero for an empty set.
func average(sum float64, n int64) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(sum).Div(decimal.NewFromInt(n)).Round(2)
}
