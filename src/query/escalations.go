package query

import (
	"context"
	"time"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/model"
	"exceptiontracker/src/policy"
	"exceptiontracker/src/repository"
)

// EscalationFilter narrows the escalation report. From and To bound the time
// of the latest escalation.
type EscalationFilter struct {
	VerticalID *uint
	Severity   *model.Severity
	From       *time.Time
	To         *time.Time
}

type EscalatedException struct {
	ExceptionView
	TotalEscalations int64 `json:"total_escalations"`
}

type EscalationReport struct {
	Items      []EscalatedException     `json:"items"`
	Total      int                      `json:"total"`
	BySeverity map[model.Severity]int64 `json:"by_severity"`
	ByLevel    map[int]int64            `json:"by_level"`
}

// GetEscalationReport lists escalated exceptions, highest level first, each
// with its number of escalation records.
func (e *Engine) GetEscalationReport(ctx context.Context, actor model.Principal, f EscalationFilter) (*EscalationReport, error) {
	vertical, err := policy.ScopeVertical(actor, f.VerticalID)
	if err != nil {
		return nil, err
	}
	if f.Severity != nil && !f.Severity.Valid() {
		return nil, apperr.Validation("invalid severity").With("severity", *f.Severity)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperr.Validation("date range is inverted").
			With("from", f.From.Format(time.RFC3339)).
			With("to", f.To.Format(time.RFC3339))
	}

	rows, err := e.store.FindAll(ctx, repository.ExceptionSearchOptions{
		VerticalID:      vertical,
		Severity:        f.Severity,
		EscalatedOnly:   true,
		EscalatedAfter:  f.From,
		EscalatedBefore: f.To,
		SortBy:          "escalation_level",
		SortDesc:        true,
	})
	if err != nil {
		return nil, apperr.Internal(err, "failed to load escalated exceptions")
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := e.escalations.CountEscalations(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to count escalations")
	}

	now := e.clock()
	report := &EscalationReport{
		Items:      make([]EscalatedException, 0, len(rows)),
		Total:      len(rows),
		BySeverity: make(map[model.Severity]int64),
		ByLevel:    make(map[int]int64),
	}
	for _, row := range rows {
		total := counts[row.ID]
		if total == 0 {
			total = int64(row.EscalationCount)
		}
		report.Items = append(report.Items, EscalatedException{
			ExceptionView:    View(row, now),
			TotalEscalations: total,
		})
		report.BySeverity[row.Severity]++
		report.ByLevel[row.EscalationLevel]++
	}
	return report, nil
}
