// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exceptiontracker/src/database"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Open returns a private in-memory sqlite database with the full schema and
// the default SLA rules. It is closed when the test ends.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + unsafeChars.ReplaceAllString(t.Name(), "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, true))
	return db
}
