package profiles

import (
	"fmt"

	"gorm.io/gorm"
)

// Init creates the profiles table when it does not exist yet. On a hosted
// project the table is usually already there and this is a no-op.
func Init(db *gorm.DB) error {
	if err := db.AutoMigrate(&Profile{}); err != nil {
		return fmt.Errorf("auto-migrate profiles: %w", err)
	}
	return nil
}
