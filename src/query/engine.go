// Package query serves read-only listings and reports over exceptions.
// Every call is scoped to the verticals the principal may see.
package query

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/model"
	"exceptiontracker/src/policy"
	"exceptiontracker/src/repository"
	"exceptiontracker/src/utils"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store is the read side of the exception repository.
type Store interface {
	Search(ctx context.Context, options repository.ExceptionSearchOptions) ([]model.Exception, int64, error)
	FindAll(ctx context.Context, options repository.ExceptionSearchOptions) ([]model.Exception, error)
	Aggregate(ctx context.Context, options repository.ExceptionSearchOptions, now time.Time) (*repository.ExceptionAggregate, error)
}

// EscalationCounter counts escalation records per exception.
type EscalationCounter interface {
	CountEscalations(ctx context.Context, exceptionIDs []uint) (map[uint]int64, error)
}

type Engine struct {
	store       Store
	escalations EscalationCounter
	now         func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for derived fields.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, escalations EscalationCounter, opts ...Option) *Engine {
	e := &Engine{store: store, escalations: escalations, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// ListFilter holds the listing filters, pagination and sort order.
type ListFilter struct {
	Status        *model.ExceptionStatus
	Severity      *model.Severity
	VerticalID    *uint
	AssignedTo    *uint
	CreatedBy     *uint
	Priority      *bool
	Category      *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Search        string
	OverdueOnly   bool
	SLABreachOnly bool

	Page     int
	Limit    int
	SortBy   string
	SortDesc bool
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ExceptionView is an exception plus fields derived at read time.
type ExceptionView struct {
	model.Exception
	AgeDays         int      `json:"age_days"`
	DaysUntilDue    *int     `json:"days_until_due,omitempty"`
	ResolutionHours *float64 `json:"resolution_hours,omitempty"`
	ResolutionDays  *int     `json:"resolution_days,omitempty"`
	Overdue         bool     `json:"is_overdue"`
}

// Page is one page of a listing.
type Page struct {
	Items      []ExceptionView `json:"items"`
	Pagination Pagination      `json:"pagination"`
}

// List returns one page of exceptions visible to actor.
func (e *Engine) List(ctx context.Context, actor model.Principal, f ListFilter) (*Page, error) {
	vertical, err := policy.ScopeVertical(actor, f.VerticalID)
	if err != nil {
		return nil, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Validation("invalid status").With("status", *f.Status)
	}
	if f.Severity != nil && !f.Severity.Valid() {
		return nil, apperr.Validation("invalid severity").With("severity", *f.Severity)
	}
	if f.SortBy != "" {
		if _, ok := repository.SortColumn(f.SortBy); !ok {
			return nil, apperr.Validation("invalid sort field").With("sort_by", f.SortBy)
		}
	}

	page, limit := normalizePage(f.Page, f.Limit)
	now := e.clock()
	opts := repository.ExceptionSearchOptions{
		Status:        f.Status,
		Severity:      f.Severity,
		VerticalID:    vertical,
		AssignedTo:    f.AssignedTo,
		CreatedBy:     f.CreatedBy,
		Priority:      f.Priority,
		Category:      f.Category,
		CreatedAfter:  f.CreatedFrom,
		CreatedBefore: f.CreatedTo,
		Search:        f.Search,
		SLABreachOnly: f.SLABreachOnly,
		SortBy:        f.SortBy,
		SortDesc:      f.SortDesc,
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}
	if f.OverdueOnly {
		opts.OverdueAt = &now
	}

	rows, total, err := e.store.Search(ctx, opts)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list exceptions")
	}

	logger.WithFields(map[string]interface{}{
		"service": "query",
		"op":      "List",
		"actor":   actor.ID,
		"page":    page,
		"total":   total,
	}).Debug("Exceptions listed")

	return &Page{
		Items: e.views(rows, now),
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages(total, limit),
		},
	}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

func (e *Engine) views(rows []model.Exception, now time.Time) []ExceptionView {
	out := make([]ExceptionView, 0, len(rows))
	for _, row := range rows {
		out = append(out, View(row, now))
	}
	return out
}

// View derives the read-time fields of exc as seen at now. Active exceptions
// age until now; resolved or closed ones report how long resolution took.
func View(exc model.Exception, now time.Time) ExceptionView {
	v := ExceptionView{Exception: exc, Overdue: exc.IsOverdue(now)}

	if exc.Status.IsActive() || exc.ResolvedAt == nil {
		v.AgeDays = utils.DaysBetween(exc.CreatedAt, now)
	} else {
		hours := math.Round(utils.HoursBetween(exc.CreatedAt, *exc.ResolvedAt)*100) / 100
		days := utils.DaysBetween(exc.CreatedAt, *exc.ResolvedAt)
		v.ResolutionHours = &hours
		v.ResolutionDays = &days
		v.AgeDays = days
	}

	if exc.DueDate != nil && exc.Status.IsActive() {
		d := utils.DaysBetween(now, *exc.DueDate)
		v.DaysUntilDue = &d
	}
	return v
}
