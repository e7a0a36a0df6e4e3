package local

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/fitlink/fitlink-backend/internal/db"
)

// Init prepares the app_auth schema and its tables.
func Init(d *gorm.DB) error {
	if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS hstore`).Error; err != nil {
		return fmt.Errorf("create extension hstore: %w", err)
	}
	if err := db.EnsureSchema(d, "app_auth"); err != nil {
		return fmt.Errorf("ensure schema app_auth: %w", err)
	}
	if err := d.AutoMigrate(&User{}, &Session{}); err != nil {
		return fmt.Errorf("auto-migrate app_auth: %w", err)
	}
	return nil
}
