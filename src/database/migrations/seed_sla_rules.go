package migrations

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exceptiontracker/src/model"
)

// DefaultSLARules is the resolution budget installed on a fresh database.
var DefaultSLARules = map[model.Severity]int{
	model.SeverityCritical: 4,
	model.SeverityHigh:     24,
	model.SeverityMedium:   72,
	model.SeverityLow:      168,
}

// SeedDefaultSLARules installs DefaultSLARules for every severity that has no rule yet.
func SeedDefaultSLARules(db *gorm.DB) error {
	now := time.Now().UTC()
	for _, sev := range []model.Severity{
		model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow,
	} {
		rule := model.SLARule{
			Severity:            sev,
			ResolutionTimeHours: DefaultSLARules[sev],
			Active:              true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		// Keep rules an operator already configured.
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rule).Error; err != nil {
			return fmt.Errorf("seed sla rule %s: %w", sev, err)
		}
	}
	return nil
}

// legacyStatuses maps status spellings found in older data to the current workflow states.
var legacyStatuses = map[string]model.ExceptionStatus{
	"new":         model.StatusOpen,
	"pending":     model.StatusOpen,
	"in-progress": model.StatusInProgress,
	"inprogress":  model.StatusInProgress,
	"done":        model.StatusResolved,
	"completed":   model.StatusResolved,
	"archived":    model.StatusClosed,
}

func normalizeExceptionStatus(db *gorm.DB) error {
	for legacy, current := range legacyStatuses {
		err := db.Model(&model.Exception{}).
			Where("LOWER(status) = ?", strings.ToLower(legacy)).
			Update("status", current).Error
		if err != nil {
			return fmt.Errorf("normalize status %q: %w", legacy, err)
		}
	}
	return nil
}
