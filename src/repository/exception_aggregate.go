package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/model"
)

// ExceptionGroupCount is the number of exceptions sharing one
// status/severity/category combination.
type ExceptionGroupCount struct {
	Status   model.ExceptionStatus `gorm:"column:status"`
	Severity model.Severity        `gorm:"column:severity"`
	Category string                `gorm:"column:category"`
	Total    int64                 `gorm:"column:total"`
}

// ExceptionAggregate is computed by the database over a filtered set of
// exceptions. Durations are summed in hours; callers derive averages.
type ExceptionAggregate struct {
	Groups []ExceptionGroupCount `gorm:"-"`

	Overdue         int64   `gorm:"column:overdue"`
	SLABreached     int64   `gorm:"column:sla_breached"`
	Priority        int64   `gorm:"column:priority"`
	Escalated       int64   `gorm:"column:escalated"`
	Resolved        int64   `gorm:"column:resolved"`
	ResolutionHours float64 `gorm:"column:resolution_hours"`
	Active          int64   `gorm:"column:active"`
	ActiveAgeHours  float64 `gorm:"column:active_age_hours"`
}

// hoursBetween returns the dialect's SQL for (to - from) in hours.
func (r *ExceptionRepository) hoursBetween(from, to string) string {
	if r.db.Dialector.Name() == "sqlite" {
		return "(julianday(" + to + ") - julianday(" + from + ")) * 24.0"
	}
	return "CAST(EXTRACT(EPOCH FROM (" + to + " - " + from + ")) AS double precision) / 3600.0"
}

func (r *ExceptionRepository) nowParam() string {
	if r.db.Dialector.Name() == "sqlite" {
		return "?"
	}
	return "CAST(? AS timestamptz)"
}

// Aggregate counts and sums the exceptions matching options as of now.
// Pagination and sort options are ignored.
func (r *ExceptionRepository) Aggregate(ctx context.Context, options ExceptionSearchOptions, now time.Time) (*ExceptionAggregate, error) {
	options.Limit, options.Offset, options.SortBy = 0, 0, ""
	active := []model.ExceptionStatus{model.StatusOpen, model.StatusInProgress}
	log := logger.WithFields(map[string]interface{}{
		"repo": "ExceptionRepository",
		"op":   "Aggregate",
	})

	var agg ExceptionAggregate
	err := r.filtered(ctx, options).
		Select("status, severity, category, COUNT(*) AS total").
		Group("status, severity, category").
		Scan(&agg.Groups).Error
	if err != nil {
		log.WithError(err).Error("Failed to group exceptions")
		return nil, err
	}

	selects := "" +
		"COALESCE(SUM(CASE WHEN status IN ? AND due_date IS NOT NULL AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue, " +
		"COALESCE(SUM(CASE WHEN sla_breach THEN 1 ELSE 0 END), 0) AS sla_breached, " +
		"COALESCE(SUM(CASE WHEN priority THEN 1 ELSE 0 END), 0) AS priority, " +
		"COALESCE(SUM(CASE WHEN escalation_level > 0 THEN 1 ELSE 0 END), 0) AS escalated, " +
		"COALESCE(SUM(CASE WHEN resolved_at IS NOT NULL AND status NOT IN ? THEN 1 ELSE 0 END), 0) AS resolved, " +
		"COALESCE(SUM(CASE WHEN resolved_at IS NOT NULL AND status NOT IN ? THEN " + r.hoursBetween("created_at", "resolved_at") + " END), 0) AS resolution_hours, " +
		"COALESCE(SUM(CASE WHEN status IN ? THEN 1 ELSE 0 END), 0) AS active, " +
		"COALESCE(SUM(CASE WHEN status IN ? THEN " + r.hoursBetween("created_at", r.nowParam()) + " END), 0) AS active_age_hours"

	err = r.filtered(ctx, options).
		Select(selects, active, now, active, active, active, active, now).
		Scan(&agg).Error
	if err != nil {
		log.WithError(err).Error("Failed to aggregate exceptions")
		return nil, err
	}
	return &agg, nil
}
