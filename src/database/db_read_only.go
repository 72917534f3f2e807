package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"exceptiontracker/src/model"
)

// ReadOnlyDB serves listing and reporting queries. It points at a replica when
// DATABASE_URL_READONLY is set and falls back to MainDB otherwise.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	if config.ReadOnlyURL == "" {
		ReadOnlyDB = MainDB
		logrus.Info("[ReadOnlyDB] no replica configured, reads use MainDB")
		return nil
	}

	db, err := Open(config.Driver, config.ReadOnlyURL, config)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.Model(&model.Exception{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access exceptions on ReadOnlyDB: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] exceptions reachable")

	ReadOnlyDB = db
	return nil
}
