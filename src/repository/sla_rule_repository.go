package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exceptiontracker/src/database"
	"exceptiontracker/src/model"
)

// SLARuleRepository reads and maintains the severity -> resolution budget table.
type SLARuleRepository struct {
	db *gorm.DB
}

func NewSLARuleRepository() *SLARuleRepository {
	return &SLARuleRepository{
		db: database.MainDB,
	}
}

func (r *SLARuleRepository) WithDB(db *gorm.DB) *SLARuleRepository {
	return &SLARuleRepository{db: db}
}

// FindActiveBySeverity returns the active rule for severity, or (nil, nil) if none.
func (r *SLARuleRepository) FindActiveBySeverity(ctx context.Context, severity model.Severity) (*model.SLARule, error) {
	var rule model.SLARule
	err := r.db.WithContext(ctx).
		Where("severity = ? AND active = ?", severity, true).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":     "SLARuleRepository",
			"op":       "FindActiveBySeverity",
			"severity": severity,
		}).WithError(err).Error("Failed to fetch SLA rule")
		return nil, err
	}
	return &rule, nil
}

func (r *SLARuleRepository) List(ctx context.Context) ([]model.SLARule, error) {
	var rules []model.SLARule
	err := r.db.WithContext(ctx).Order("resolution_time_hours ASC").Find(&rules).Error
	return rules, err
}

// Upsert creates or replaces the rule for rule.Severity.
func (r *SLARuleRepository) Upsert(ctx context.Context, rule *model.SLARule) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "severity"}},
			DoUpdates: clause.AssignmentColumns([]string{"resolution_time_hours", "active", "updated_at"}),
		}).
		Create(rule).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "SLARuleRepository",
			"op":       "Upsert",
			"severity": rule.Severity,
		}).WithError(err).Error("Failed to upsert SLA rule")
	}
	return err
}
