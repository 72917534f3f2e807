package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"exceptiontracker/src/database/migrations"
	"exceptiontracker/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()
	db, err := Open(config.Driver, config.DatabaseURL, config)
	if err != nil {
		return err
	}

	MainDB = db
	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := Migrate(MainDB, config.SeedSLARules); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")
	return nil
}

// Migrate brings the schema up to date and runs pending data migrations.
func Migrate(db *gorm.DB, seedSLARules bool) error {
	if err := migrations.PrepareLegacyExceptionColumns(db); err != nil {
		return fmt.Errorf("failed to prepare legacy exception columns: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Exception{},
		&model.ExceptionComment{},
		&model.ExceptionHistory{},
		&model.ExceptionEscalation{},
		&model.SLARule{},
		&model.ExceptionSequence{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db, seedSLARules); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}
	return nil
}
