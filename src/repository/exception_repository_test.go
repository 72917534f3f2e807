package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"exceptiontracker/src/database/dbtest"
	"exceptiontracker/src/model"
)

func TestExceptionRepositorySearchQueries(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExceptionRepository{}).WithDB(db)

	severity := model.SeverityCritical
	createdAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "exceptions" WHERE severity = $1 AND vertical_id = $2`)).
		WithArgs("critical", uint(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "exceptions" WHERE severity = $1 AND vertical_id = $2 ORDER BY due_date ASC, id ASC LIMIT $3`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "title", "severity", "vertical_id", "status", "created_at"}).
			AddRow(7, "EXC-2026-000007", "Feed delayed", "critical", 5, "open", createdAt))

	rows, total, err := repo.Search(context.Background(), ExceptionSearchOptions{
		Severity:   &severity,
		VerticalID: ptrUint(5),
		SortBy:     "due_date",
		Limit:      1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "EXC-2026-000007", rows[0].Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExceptionRepositoryUpdateEscalationConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "exceptions" SET .* WHERE id = \$\d+ AND escalation_level = \$\d+ AND escalation_count = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := repo.UpdateEscalation(context.Background(), 3, 1, 1, map[string]interface{}{
		"escalation_level": 2,
		"escalation_count": 2,
		"updated_at":       now,
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExceptionRepositoryFindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExceptionRepository{}).WithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "exceptions" WHERE "exceptions"."id" = $1`)).
		WillReturnError(gorm.ErrRecordNotFound)

	exc, err := repo.FindByID(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, exc)
}

func TestMarkSLABreachesSingleConditionalUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE "exceptions" SET .* WHERE .*status IN \(\$\d+,\$\d+\) AND due_date IS NOT NULL AND due_date < \$\d+ AND sla_breach = \$\d+.* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9).AddRow(7))
	mock.ExpectCommit()

	ids, err := repo.MarkSLABreaches(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 9}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func seedException(t *testing.T, db *gorm.DB, mutate func(*model.Exception)) *model.Exception {
	t.Helper()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exc := &model.Exception{
		Title:       "Ledger mismatch",
		Description: "Totals differ between systems",
		Severity:    model.SeverityHigh,
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

func TestExceptionRepositorySearchSQLite(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	ctx := context.Background()

	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Severity, e.Title = "EXC-2026-000001", model.SeverityCritical, "Payout batch stuck"
	})
	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Severity, e.VerticalID = "EXC-2026-000002", model.SeverityCritical, 6
	})
	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Severity = "EXC-2026-000003", model.SeverityLow
	})
	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Severity, e.Title = "EXC-2026-000004", model.SeverityCritical, "Card payout rejected"
		e.CreatedAt = e.CreatedAt.Add(time.Hour)
	})

	t.Run("severity and vertical", func(t *testing.T) {
		severity := model.SeverityCritical
		rows, total, err := repo.Search(ctx, ExceptionSearchOptions{Severity: &severity, VerticalID: ptrUint(5)})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.Equal(t, model.SeverityCritical, row.Severity)
			assert.Equal(t, uint(5), row.VerticalID)
		}
		assert.Equal(t, "EXC-2026-000004", rows[0].Number, "newest first by default")
	})

	t.Run("pagination keeps total", func(t *testing.T) {
		rows, total, err := repo.Search(ctx, ExceptionSearchOptions{SortBy: "exception_number", Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 4, total)
		require.Len(t, rows, 2)
		assert.Equal(t, "EXC-2026-000003", rows[0].Number)
	})

	t.Run("case insensitive search", func(t *testing.T) {
		rows, _, err := repo.Search(ctx, ExceptionSearchOptions{Search: "PAYOUT"})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("category filter", func(t *testing.T) {
		rows, total, err := repo.Search(ctx, ExceptionSearchOptions{Category: ptrString("none")})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, rows)
	})
}

func TestMarkSLABreaches(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	overdue := seedException(t, db, func(e *model.Exception) { e.Number, e.DueDate = "A", &past })
	inProgress := seedException(t, db, func(e *model.Exception) {
		e.Number, e.DueDate, e.Status = "B", &past, model.StatusInProgress
	})
	seedException(t, db, func(e *model.Exception) { e.Number, e.DueDate = "C", &future })
	seedException(t, db, func(e *model.Exception) { e.Number = "D" })
	seedException(t, db, func(e *model.Exception) {
		e.Number, e.DueDate, e.Status = "E", &past, model.StatusResolved
	})
	seedException(t, db, func(e *model.Exception) { e.Number, e.DueDate, e.SLABreach = "F", &past, true })

	ids, err := repo.MarkSLABreaches(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uint{overdue.ID, inProgress.ID}, ids)

	again, err := repo.MarkSLABreaches(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, again)

	rows, total, err := repo.Search(ctx, ExceptionSearchOptions{SLABreachOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, rows, 3)

	overdueRows, _, err := repo.Search(ctx, ExceptionSearchOptions{OverdueAt: &now})
	require.NoError(t, err)
	assert.Len(t, overdueRows, 3)
}

func TestUpdateEscalationSQLite(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	ctx := context.Background()
	exc := seedException(t, db, func(e *model.Exception) { e.Number = "X" })

	ok, err := repo.UpdateEscalation(ctx, exc.ID, 0, 0, map[string]interface{}{"escalation_level": 1, "escalation_count": 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateEscalation(ctx, exc.ID, 0, 0, map[string]interface{}{"escalation_level": 1, "escalation_count": 1})
	require.NoError(t, err)
	assert.False(t, ok, "stale read must not apply")

	stored, err := repo.FindByID(ctx, exc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.EscalationLevel)
	assert.Equal(t, 1, stored.EscalationCount)
}

func TestNumberRepositoryNext(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&NumberRepository{prefix: "OPS"}).WithDB(db)
	ctx := context.Background()
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	first, err := repo.Next(ctx, jan)
	require.NoError(t, err)
	second, err := repo.Next(ctx, jan)
	require.NoError(t, err)
	nextYear, err := repo.Next(ctx, jan.AddDate(1, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, "OPS-2026-000001", first)
	assert.Equal(t, "OPS-2026-000002", second)
	assert.Equal(t, "OPS-2027-000001", nextYear)
}

func TestSLARuleRepositoryUpsert(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&SLARuleRepository{}).WithDB(db)
	ctx := context.Background()

	rule, err := repo.FindActiveBySeverity(ctx, model.SeverityCritical)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 4, rule.ResolutionTimeHours)

	require.NoError(t, repo.Upsert(ctx, &model.SLARule{Severity: model.SeverityCritical, ResolutionTimeHours: 24, Active: true}))
	rule, err = repo.FindActiveBySeverity(ctx, model.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 24, rule.ResolutionTimeHours)

	require.NoError(t, repo.Upsert(ctx, &model.SLARule{Severity: model.SeverityCritical, ResolutionTimeHours: 24, Active: false}))
	rule, err = repo.FindActiveBySeverity(ctx, model.SeverityCritical)
	require.NoError(t, err)
	assert.Nil(t, rule)

	rules, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 4)
}

func TestExceptionLogRepository(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&ExceptionLogRepository{}).WithDB(db)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateComment(ctx, &model.ExceptionComment{ExceptionID: 1, AuthorID: 2, Text: "public", CreatedAt: at}))
	require.NoError(t, repo.CreateComment(ctx, &model.ExceptionComment{ExceptionID: 1, AuthorID: 2, Text: "internal", IsInternal: true, CreatedAt: at}))

	visible, err := repo.ListComments(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "public", visible[0].Text)

	all, err := repo.ListComments(ctx, 1, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	for level := 1; level <= 2; level++ {
		require.NoError(t, repo.CreateEscalation(ctx, &model.ExceptionEscalation{
			ExceptionID: 1, EscalatedBy: 2, Level: level, Status: model.EscalationStatusActive, EscalatedAt: at,
		}))
	}
	counts, err := repo.CountEscalations(ctx, []uint{1, 9})
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{1: 2}, counts)

	require.NoError(t, repo.CreateHistory(ctx, &model.ExceptionHistory{
		ExceptionID: 1,
		Action:      model.ActionUpdate,
		PerformedBy: 2,
		OldValues:   model.Values{"severity": "low"},
		NewValues:   model.Values{"severity": "high"},
		CreatedAt:   at,
	}))
	entries, err := repo.ListHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "high", entries[0].NewValues["severity"])
}

func TestExceptionRepositoryAggregate(t *testing.T) {
	db := dbtest.Open(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	resolvedAt := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Category, e.DueDate, e.SLABreach, e.Priority = "A", "payments", &past, true, true
	})
	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Category, e.Status, e.EscalationLevel = "B", "payments", model.StatusInProgress, 2
	})
	seedException(t, db, func(e *model.Exception) {
		e.Number, e.Status, e.ResolvedAt, e.DueDate = "C", model.StatusResolved, &resolvedAt, &past
	})
	seedException(t, db, func(e *model.Exception) { e.Number, e.VerticalID = "D", 6 })

	agg, err := repo.Aggregate(ctx, ExceptionSearchOptions{VerticalID: ptrUint(5), Limit: 1}, now)
	require.NoError(t, err)

	var total int64
	byStatus := map[model.ExceptionStatus]int64{}
	for _, g := range agg.Groups {
		total += g.Total
		byStatus[g.Status] += g.Total
	}
	assert.EqualValues(t, 3, total)
	assert.EqualValues(t, 1, byStatus[model.StatusResolved])
	assert.EqualValues(t, 1, agg.Overdue)
	assert.EqualValues(t, 1, agg.SLABreached)
	assert.EqualValues(t, 1, agg.Priority)
	assert.EqualValues(t, 1, agg.Escalated)
	assert.EqualValues(t, 1, agg.Resolved)
	// seeded at 2026-03-01 09:00
	assert.InDelta(t, 6.0, agg.ResolutionHours, 0.001)
	assert.EqualValues(t, 2, agg.Active)
	assert.InDelta(t, 144.0, agg.ActiveAgeHours, 0.001)

	empty, err := repo.Aggregate(ctx, ExceptionSearchOptions{VerticalID: ptrUint(9)}, now)
	require.NoError(t, err)
	assert.Empty(t, empty.Groups)
	assert.Zero(t, empty.Active)
	assert.Zero(t, empty.ResolutionHours)
}

func TestExceptionRepositoryAggregatePostgresSQL(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExceptionRepository{}).WithDB(db)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, severity, category, COUNT(*) AS total FROM "exceptions" WHERE vertical_id = $1 GROUP BY status, severity, category`)).
		WithArgs(uint(5)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "severity", "category", "total"}).
			AddRow("open", "high", "payments", 4).
			AddRow("resolved", "high", "", 1))
	mock.ExpectQuery(`EXTRACT\(EPOCH FROM \(resolved_at - created_at\)\).* EXTRACT\(EPOCH FROM \(CAST\(\$\d+ AS timestamptz\) - created_at\)\).* FROM "exceptions" WHERE vertical_id = \$\d+`).
		WillReturnRows(sqlmock.NewRows([]string{
			"overdue", "sla_breached", "priority", "escalated", "resolved", "resolution_hours", "active", "active_age_hours",
		}).AddRow(2, 1, 1, 0, 1, 30.5, 4, 96.0))

	agg, err := repo.Aggregate(context.Background(), ExceptionSearchOptions{VerticalID: ptrUint(5)}, now)
	require.NoError(t, err)
	require.Len(t, agg.Groups, 2)
	assert.EqualValues(t, 4, agg.Groups[0].Total)
	assert.EqualValues(t, 2, agg.Overdue)
	assert.Equal(t, 30.5, agg.ResolutionHours)
	assert.EqualValues(t, 4, agg.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
