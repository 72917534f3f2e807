package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"exceptiontracker/src/database"
	"exceptiontracker/src/model"
)

// ExceptionLogRepository persists the append-only logs attached to an
// exception: history entries, comments and escalation records.
type ExceptionLogRepository struct {
	db *gorm.DB
}

func NewExceptionLogRepository() *ExceptionLogRepository {
	logger.WithField("component", "ExceptionLogRepository").
		Info("Creating new ExceptionLogRepository with MainDB")

	return &ExceptionLogRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionLogRepository) WithDB(db *gorm.DB) *ExceptionLogRepository {
	return &ExceptionLogRepository{db: db}
}

func (r *ExceptionLogRepository) CreateHistory(ctx context.Context, entry *model.ExceptionHistory) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExceptionLogRepository",
			"op":           "CreateHistory",
			"exception_id": entry.ExceptionID,
			"action":       entry.Action,
		}).WithError(err).Error("Failed to append history entry")
	}
	return err
}

// ListHistory returns the history of an exception, oldest first.
func (r *ExceptionLogRepository) ListHistory(ctx context.Context, exceptionID uint) ([]model.ExceptionHistory, error) {
	var entries []model.ExceptionHistory
	err := r.db.WithContext(ctx).
		Where("exception_id = ?", exceptionID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *ExceptionLogRepository) CreateComment(ctx context.Context, comment *model.ExceptionComment) error {
	err := r.db.WithContext(ctx).Create(comment).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExceptionLogRepository",
			"op":           "CreateComment",
			"exception_id": comment.ExceptionID,
		}).WithError(err).Error("Failed to create comment")
	}
	return err
}

// ListComments returns the comments of an exception, oldest first.
// Internal comments are skipped unless includeInternal is set.
func (r *ExceptionLogRepository) ListComments(ctx context.Context, exceptionID uint, includeInternal bool) ([]model.ExceptionComment, error) {
	q := r.db.WithContext(ctx).Where("exception_id = ?", exceptionID)
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}

	var comments []model.ExceptionComment
	err := q.Order("created_at ASC, id ASC").Find(&comments).Error
	return comments, err
}

func (r *ExceptionLogRepository) CreateEscalation(ctx context.Context, esc *model.ExceptionEscalation) error {
	err := r.db.WithContext(ctx).Create(esc).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ExceptionLogRepository",
			"op":           "CreateEscalation",
			"exception_id": esc.ExceptionID,
			"level":        esc.Level,
		}).WithError(err).Error("Failed to create escalation record")
	}
	return err
}

// ListEscalations returns the escalation records of an exception, oldest first.
func (r *ExceptionLogRepository) ListEscalations(ctx context.Context, exceptionID uint) ([]model.ExceptionEscalation, error) {
	var items []model.ExceptionEscalation
	err := r.db.WithContext(ctx).
		Where("exception_id = ?", exceptionID).
		Order("escalated_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// CountEscalations returns the number of escalation records per exception id.
func (r *ExceptionLogRepository) CountEscalations(ctx context.Context, exceptionIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(exceptionIDs))
	if len(exceptionIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ExceptionID uint
		Total       int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.ExceptionEscalation{}).
		Select("exception_id, COUNT(*) AS total").
		Where("exception_id IN ?", exceptionIDs).
		Group("exception_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ExceptionID] = row.Total
	}
	return counts, nil
}
