package repository

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exceptiontracker/src/database"
	"exceptiontracker/src/model"
)

// ExceptionRepository handles persistence of exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance using the main database.
func NewExceptionRepository() *ExceptionRepository {
	logger.WithField("component", "ExceptionRepository").
		Info("Creating new ExceptionRepository with MainDB")

	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// ExceptionSearchOptions holds optional filters for listing exceptions.
type ExceptionSearchOptions struct {
	IDs        []uint
	Status     *model.ExceptionStatus
	StatusIn   []model.ExceptionStatus
	Severity   *model.Severity
	VerticalID *uint
	AssignedTo *uint
	CreatedBy  *uint
	Priority   *bool
	Category   *string
	Search     string

	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// OverdueAt keeps only active exceptions whose due date is before the given instant.
	OverdueAt     *time.Time
	SLABreachOnly bool
	EscalatedOnly bool

	EscalatedAfter  *time.Time
	EscalatedBefore *time.Time

	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

var sortColumns = map[string]string{
	"created_at":       "created_at",
	"updated_at":       "updated_at",
	"due_date":         "due_date",
	"severity":         "severity",
	"status":           "status",
	"title":            "title",
	"category":         "category",
	"escalation_level": "escalation_level",
	"exception_number": "number",
}

// SortColumn reports whether field is an accepted sort key.
func SortColumn(field string) (string, bool) {
	col, ok := sortColumns[field]
	return col, ok
}

// Create inserts a new exception. The given struct receives the generated ID.
func (r *ExceptionRepository) Create(ctx context.Context, exc *model.Exception) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "ExceptionRepository",
		"op":          "Create",
		"number":      exc.Number,
		"vertical_id": exc.VerticalID,
		"severity":    exc.Severity,
	}).Debug("Creating exception")

	if err := r.db.WithContext(ctx).Create(exc).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create exception")
		return err
	}
	return nil
}

// FindByID fetches a single exception. Returns (nil, nil) if not found.
func (r *ExceptionRepository) FindByID(ctx context.Context, id uint) (*model.Exception, error) {
	var exc model.Exception
	err := r.db.WithContext(ctx).First(&exc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "ExceptionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Debug("Exception not found")
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch exception")
		return nil, err
	}
	return &exc, nil
}

// UpdateFields writes the given columns of a single exception.
func (r *ExceptionRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "ExceptionRepository",
		"op":     "UpdateFields",
		"id":     id,
		"fields": len(fields),
	}).Debug("Updating exception")

	err := r.db.WithContext(ctx).
		Model(&model.Exception{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "UpdateFields",
			"id":   id,
		}).WithError(err).Error("Failed to update exception")
	}
	return err
}

// UpdateEscalation applies an escalation only if the stored level and count
// still match what the caller read. It returns false when another writer
// got there first.
func (r *ExceptionRepository) UpdateEscalation(
	ctx context.Context,
	id uint,
	expectedLevel int,
	expectedCount int,
	fields map[string]interface{},
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Exception{}).
		Where("id = ? AND escalation_level = ? AND escalation_count = ?", id, expectedLevel, expectedCount).
		Updates(fields)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "UpdateEscalation",
			"id":   id,
		}).WithError(res.Error).Error("Failed to escalate exception")
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete removes an exception row permanently.
func (r *ExceptionRepository) Delete(ctx context.Context, id uint) error {
	logger.WithFields(map[string]interface{}{
		"repo": "ExceptionRepository",
		"op":   "Delete",
		"id":   id,
	}).Warn("Hard deleting exception")

	return r.db.WithContext(ctx).Delete(&model.Exception{}, id).Error
}

// Search returns one page of exceptions matching options plus the total match count.
func (r *ExceptionRepository) Search(ctx context.Context, options ExceptionSearchOptions) ([]model.Exception, int64, error) {
	var total int64
	if err := r.filtered(ctx, options).Model(&model.Exception{}).Count(&total).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to count exceptions")
		return nil, 0, err
	}

	query := r.filtered(ctx, options).Order(orderClause(options))
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var rows []model.Exception
	if err := query.Find(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search exceptions")
		return nil, 0, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ExceptionRepository",
		"op":          "Search",
		"rows_return": len(rows),
		"total":       total,
	}).Debug("Exceptions fetched")

	return rows, total, nil
}

// FindAll returns every exception matching options, ignoring pagination.
func (r *ExceptionRepository) FindAll(ctx context.Context, options ExceptionSearchOptions) ([]model.Exception, error) {
	var rows []model.Exception
	err := r.filtered(ctx, options).Order(orderClause(options)).Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to load exceptions")
		return nil, err
	}
	return rows, nil
}

// MarkSLABreaches flags every active exception whose due date is before now
// and that is not flagged yet. The predicate is evaluated by the UPDATE itself
// so rows resolved or flagged concurrently are left alone. It returns the ids
// flagged by this call.
func (r *ExceptionRepository) MarkSLABreaches(ctx context.Context, now time.Time) ([]uint, error) {
	active := []model.ExceptionStatus{model.StatusOpen, model.StatusInProgress}

	var flagged []model.Exception
	err := r.db.WithContext(ctx).
		Model(&flagged).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ? AND sla_breach = ?", active, now, false).
		Updates(map[string]interface{}{"sla_breach": true, "updated_at": now}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "MarkSLABreaches",
		}).WithError(err).Error("Failed to flag SLA breaches")
		return nil, err
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(flagged))
	for _, exc := range flagged {
		ids = append(ids, exc.ID)
	}
	slices.Sort(ids)

	logger.WithFields(map[string]interface{}{
		"repo":  "ExceptionRepository",
		"op":    "MarkSLABreaches",
		"count": len(ids),
	}).Info("SLA breaches flagged")

	return ids, nil
}

func (r *ExceptionRepository) filtered(ctx context.Context, o ExceptionSearchOptions) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.Exception{})

	if len(o.IDs) > 0 {
		q = q.Where("id IN ?", o.IDs)
	}
	if o.Status != nil {
		q = q.Where("status = ?", *o.Status)
	}
	if len(o.StatusIn) > 0 {
		q = q.Where("status IN ?", o.StatusIn)
	}
	if o.Severity != nil {
		q = q.Where("severity = ?", *o.Severity)
	}
	if o.VerticalID != nil {
		q = q.Where("vertical_id = ?", *o.VerticalID)
	}
	if o.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *o.AssignedTo)
	}
	if o.CreatedBy != nil {
		q = q.Where("created_by = ?", *o.CreatedBy)
	}
	if o.Priority != nil {
		q = q.Where("priority = ?", *o.Priority)
	}
	if o.Category != nil {
		q = q.Where("category = ?", *o.Category)
	}
	if o.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *o.CreatedAfter)
	}
	if o.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *o.CreatedBefore)
	}
	if s := strings.TrimSpace(o.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(number) LIKE ?)", like, like, like)
	}
	if o.OverdueAt != nil {
		q = q.Where("status IN ? AND due_date IS NOT NULL AND due_date < ?",
			[]model.ExceptionStatus{model.StatusOpen, model.StatusInProgress}, *o.OverdueAt)
	}
	if o.SLABreachOnly {
		q = q.Where("sla_breach = ?", true)
	}
	if o.EscalatedOnly {
		q = q.Where("escalation_level > ?", 0)
	}
	if o.EscalatedAfter != nil {
		q = q.Where("last_escalated_at >= ?", *o.EscalatedAfter)
	}
	if o.EscalatedBefore != nil {
		q = q.Where("last_escalated_at <= ?", *o.EscalatedBefore)
	}
	return q
}

func orderClause(o ExceptionSearchOptions) string {
	col, ok := sortColumns[o.SortBy]
	if !ok {
		return "created_at DESC, id DESC"
	}
	if o.SortDesc {
		return col + " DESC, id DESC"
	}
	return col + " ASC, id ASC"
}
