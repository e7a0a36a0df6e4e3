package training

import (
	"fmt"

	"gorm.io/gorm"
)

func Init(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return fmt.Errorf("enable pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(&Contract{}, &Schedule{}); err != nil {
		return fmt.Errorf("auto-migrate training tables: %w", err)
	}
	return nil
}
