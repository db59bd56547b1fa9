package db

import (
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Signal{},
		&models.Setting{},
	)
}
