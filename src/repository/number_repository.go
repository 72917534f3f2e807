package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exceptiontracker/src/database"
	"exceptiontracker/src/model"
)

// NumberRepository hands out human-readable exception numbers backed by a
// per-year counter row.
type NumberRepository struct {
	db     *gorm.DB
	prefix string
}

func NewNumberRepository() *NumberRepository {
	return &NumberRepository{
		db:     database.MainDB,
		prefix: GetConfig().NumberPrefix,
	}
}

func (r *NumberRepository) WithDB(db *gorm.DB) *NumberRepository {
	return &NumberRepository{db: db, prefix: r.prefix}
}

// Next reserves the next number for the year of now, e.g. EXC-2026-000042.
func (r *NumberRepository) Next(ctx context.Context, now time.Time) (string, error) {
	year := now.UTC().Year()
	var value int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := model.ExceptionSequence{Year: year, LastValue: 0, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("seed sequence %d: %w", year, err)
		}

		res := tx.Model(&model.ExceptionSequence{}).
			Where("year = ?", year).
			Updates(map[string]interface{}{
				"last_value": gorm.Expr("last_value + ?", 1),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("bump sequence %d: %w", year, res.Error)
		}

		var seq model.ExceptionSequence
		if err := tx.Where("year = ?", year).First(&seq).Error; err != nil {
			return fmt.Errorf("read sequence %d: %w", year, err)
		}
		value = seq.LastValue
		return nil
	})
	if err != nil {
		return "", err
	}

	prefix := r.prefix
	if prefix == "" {
		prefix = "EXC"
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, year, value), nil
}
