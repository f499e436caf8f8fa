package db

import "github.com/miramaps/updown-engine/internal/models"

// AutoMigrate brings the schema up to date with the models package.
func AutoMigrate(db *DB) error {
	return db.Gorm.AutoMigrate(
		&models.Market{},
		&models.Trade{},
		&models.Cycle{},
	)
}
