package query_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/database/dbtest"
	"exceptiontracker/src/model"
	"exceptiontracker/src/query"
	"exceptiontracker/src/repository"
)

var (
	now      = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	admin    = model.Principal{ID: 1, Role: model.RoleGlobalAdmin}
	lead     = model.Principal{ID: 10, Role: model.RoleVerticalLead, VerticalID: 5}
	staff    = model.Principal{ID: 30, Role: model.RoleStaff, VerticalID: 5}
	outsider = model.Principal{ID: 40, Role: model.RoleStaff, VerticalID: 6}
)

func ptr[T any](v T) *T { return &v }

func newEngine(t *testing.T) (*query.Engine, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	engine := query.NewEngine(
		(&repository.ExceptionRepository{}).WithDB(db),
		(&repository.ExceptionLogRepository{}).WithDB(db),
		query.WithClock(func() time.Time { return now }),
	)
	return engine, db
}

var seq int

func seed(t *testing.T, db *gorm.DB, mutate func(*model.Exception)) *model.Exception {
	t.Helper()
	seq++
	created := now.Add(-72 * time.Hour)
	exc := &model.Exception{
		Number:      fmt.Sprintf("EXC-2026-%06d", seq),
		Title:       "Reconciliation gap",
		Description: "Bank and ledger disagree",
		Category:    "finance",
		Severity:    model.SeverityMedium,
		VerticalID:  5,
		CreatedBy:   10,
		Status:      model.StatusOpen,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if mutate != nil {
		mutate(exc)
	}
	require.NoError(t, db.Create(exc).Error)
	return exc
}

func TestListFiltersAndPagination(t *testing.T) {
	engine, db := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seed(t, db, func(e *model.Exception) { e.Severity = model.SeverityCritical })
	}
	seed(t, db, func(e *model.Exception) { e.Severity = model.SeverityCritical; e.VerticalID = 6 })
	seed(t, db, func(e *model.Exception) { e.Severity = model.SeverityLow })

	for page := 1; page <= 3; page++ {
		res, err := engine.List(ctx, admin, query.ListFilter{
			Severity:   ptr(model.SeverityCritical),
			VerticalID: ptr(uint(5)),
			Page:       page,
			Limit:      2,
		})
		require.NoError(t, err)

		assert.EqualValues(t, 5, res.Pagination.Total)
		assert.Equal(t, 3, res.Pagination.TotalPages)
		assert.Equal(t, page, res.Pagination.Page)
		for _, item := range res.Items {
			assert.Equal(t, model.SeverityCritical, item.Severity)
			assert.Equal(t, uint(5), item.VerticalID)
		}
		if page < 3 {
			assert.Len(t, res.Items, 2)
		} else {
			assert.Len(t, res.Items, 1)
		}
	}
}

func TestListScoping(t *testing.T) {
	engine, db := newEngine(t)
	ctx := context.Background()
	seed(t, db, nil)
	seed(t, db, func(e *model.Exception) { e.VerticalID = 6 })

	t.Run("staff pinned to own vertical", func(t *testing.T) {
		res, err := engine.List(ctx, staff, query.ListFilter{})
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, uint(5), res.Items[0].VerticalID)
	})

	t.Run("foreign vertical filter is forbidden", func(t *testing.T) {
		res, err := engine.List(ctx, outsider, query.ListFilter{VerticalID: ptr(uint(5))})
		assert.Nil(t, res)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("global sees everything", func(t *testing.T) {
		res, err := engine.List(ctx, admin, query.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, res.Items, 2)
	})

	t.Run("bad sort field", func(t *testing.T) {
		_, err := engine.List(ctx, admin, query.ListFilter{SortBy: "password"})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})
}

func TestListDerivedFields(t *testing.T) {
	engine, db := newEngine(t)
	ctx := context.Background()
	due := now.Add(-24 * time.Hour)
	resolvedAt := now.Add(-36 * time.Hour)

	active := seed(t, db, func(e *model.Exception) { e.DueDate = &due })
	resolved := seed(t, db, func(e *model.Exception) {
		e.Status = model.StatusResolved
		e.ResolvedAt = &resolvedAt
	})

	res, err := engine.List(ctx, admin, query.ListFilter{OverdueOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, active.ID, item.ID)
	assert.Equal(t, 3, item.AgeDays)
	require.NotNil(t, item.DaysUntilDue)
	assert.Equal(t, -1, *item.DaysUntilDue)
	assert.True(t, item.Overdue)
	assert.Nil(t, item.ResolutionHours)

	res, err = engine.List(ctx, admin, query.ListFilter{Status: ptr(model.StatusResolved)})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item = res.Items[0]
	assert.Equal(t, resolved.ID, item.ID)
	require.NotNil(t, item.ResolutionHours)
	assert.Equal(t, 36.0, *item.ResolutionHours)
	assert.Equal(t, 1, *item.ResolutionDays)
	assert.Nil(t, item.DaysUntilDue)
}

func TestGetStats(t *testing.T) {
	engine, db := newEngine(t)
	ctx := context.Background()
	past := now.Add(-time.Hour)
	resolvedAt := now.Add(-60 * time.Hour)
	closedResolvedAt := now.Add(-48 * time.Hour)

	seed(t, db, func(e *model.Exception) { e.DueDate = &past; e.SLABreach = true; e.Priority = true })
	seed(t, db, func(e *model.Exception) {
		e.Status = model.StatusInProgress
		e.EscalationLevel = 2
		e.Severity = model.SeverityHigh
	})
	seed(t, db, func(e *model.Exception) { e.Status = model.StatusResolved; e.ResolvedAt = &resolvedAt })
	seed(t, db, func(e *model.Exception) {
		e.Status = model.StatusClosed
		e.ResolvedAt = &closedResolvedAt
		e.Category = "ops"
	})
	seed(t, db, func(e *model.Exception) { e.VerticalID = 6 })

	stats, err := engine.GetStats(ctx, lead, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 1, stats.Open)
	assert.EqualValues(t, 1, stats.InProgress)
	assert.EqualValues(t, 1, stats.Overdue)
	assert.EqualValues(t, 1, stats.SLABreached)
	assert.EqualValues(t, 1, stats.Priority)
	assert.EqualValues(t, 1, stats.Escalated)
	assert.EqualValues(t, 1, stats.ByStatus[model.StatusClosed])
	assert.EqualValues(t, 3, stats.BySeverity[model.SeverityMedium])
	assert.EqualValues(t, 3, stats.ByCategory["finance"])
	// (12h + 24h) / 2
	assert.True(t, decimal.NewFromInt(18).Equal(stats.AvgResolutionHours), stats.AvgResolutionHours.String())

	all, err := engine.GetStats(ctx, admin, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, all.Total)

	summary, err := engine.GetVerticalSummary(ctx, admin, 6)
	require.NoError(t, err)
	assert.Equal(t, uint(6), summary.VerticalID)
	assert.EqualValues(t, 1, summary.Total)

	_, err = engine.GetVerticalSummary(ctx, lead, 6)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestGetUserWorkload(t *testing.T) {
	engine, db := newEngine(t)
	ctx := context.Background()
	past := now.Add(-time.Hour)

	seed(t, db, func(e *model.Exception) { e.AssignedTo = ptr(uint(30)); e.DueDate = &past; e.Priority = true })
	seed(t, db, func(e *model.Exception) {
		e.AssignedTo = ptr(uint(30))
		e.Status = model.StatusInProgress
		e.CreatedAt = now.Add(-24 * time.Hour)
	})
	seed(t, db, func(e *model.Exception) { e.AssignedTo = ptr(uint(30)); e.Status = model.StatusClosed })
	seed(t, db, func(e *model.Exception) { e.AssignedTo = ptr(uint(31)) })

	w, err := engine.GetUserWorkload(ctx, staff, 30, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, w.Total)
	assert.EqualValues(t, 1, w.ByStatus[model.StatusClosed])
	assert.EqualValues(t, 1, w.Priority)
	assert.EqualValues(t, 1, w.Overdue)
	// (3 days + 1 day) / 2
	assert.True(t, decimal.NewFromInt(2).Equal(w.AvgOpenAgeDays), w.AvgOpenAgeDays.String())

	open, err := engine.GetUserWorkload(ctx, lead, 30, ptr(model.StatusOpen))
	require.NoError(t, err)
	assert.EqualValues(t, 1, open.Total)

	_, err = engine.GetUserWorkload(ctx, staff, 31, nil)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestGetEscalationReport(t *testing.T) {
	engine, db := newEngine(t)
	ctx := context.Background()
	recent := now.Add(-2 * time.Hour)
	old := now.Add(-20 * 24 * time.Hour)

	top := seed(t, db, func(e *model.Exception) {
		e.EscalationLevel, e.EscalationCount, e.LastEscalatedAt = 3, 3, &recent
		e.Severity = model.SeverityCritical
	})
	seed(t, db, func(e *model.Exception) { e.EscalationLevel, e.EscalationCount, e.LastEscalatedAt = 1, 1, &recent })
	seed(t, db, func(e *model.Exception) { e.EscalationLevel, e.EscalationCount, e.LastEscalatedAt = 1, 1, &old })
	seed(t, db, nil)

	for level := 1; level <= 3; level++ {
		require.NoError(t, db.Create(&model.ExceptionEscalation{
			ExceptionID: top.ID, EscalatedBy: 10, Level: level, Status: model.EscalationStatusActive, EscalatedAt: recent,
		}).Error)
	}

	report, err := engine.GetEscalationReport(ctx, lead, query.EscalationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, top.ID, report.Items[0].ID)
	assert.EqualValues(t, 3, report.Items[0].TotalEscalations)
	assert.EqualValues(t, 2, report.ByLevel[1])
	assert.EqualValues(t, 1, report.BySeverity[model.SeverityCritical])

	from := now.Add(-24 * time.Hour)
	recentOnly, err := engine.GetEscalationReport(ctx, lead, query.EscalationFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 2, recentOnly.Total)

	critical, err := engine.GetEscalationReport(ctx, admin, query.EscalationFilter{Severity: ptr(model.SeverityCritical)})
	require.NoError(t, err)
	assert.Equal(t, 1, critical.Total)

	to := from.Add(-time.Hour)
	_, err = engine.GetEscalationReport(ctx, admin, query.EscalationFilter{From: &from, To: &to})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
