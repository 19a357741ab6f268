package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/yudi-prasetyo/psychchat-backend/internal/appointments"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"github.com/yudi-prasetyo/psychchat-backend/internal/psychologists"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&identity.AccountRecord{},
		&users.RoleAssignment{},
		&psychologists.Profile{},
		&appointments.Appointment{},
		&migrationRecord{},
	)
}
