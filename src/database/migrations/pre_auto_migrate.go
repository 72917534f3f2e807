package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// legacyColumns maps columns of older exception schemas to their current names.
var legacyColumns = []struct {
	table string
	from  string
	to    string
}{
	{"exceptions", "exception_number", "number"},
	{"exceptions", "is_priority", "priority"},
	{"exception_comments", "comment", "text"},
	{"exception_comments", "user_id", "author_id"},
}

// PrepareLegacyExceptionColumns renames columns inherited from older schemas so
// that AutoMigrate keeps their data instead of adding empty columns next to them.
func PrepareLegacyExceptionColumns(db *gorm.DB) error {
	m := db.Migrator()

	for _, c := range legacyColumns {
		if !m.HasTable(c.table) {
			continue
		}
		if !m.HasColumn(c.table, c.from) || m.HasColumn(c.table, c.to) {
			continue
		}
		if err := m.RenameColumn(c.table, c.from, c.to); err != nil {
			return fmt.Errorf("rename %s.%s to %s: %w", c.table, c.from, c.to, err)
		}
	}

	return nil
}
