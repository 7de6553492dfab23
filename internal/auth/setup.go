package auth

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/CampusConnect/CC-Backend/internal/db"
)

func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "app_auth"); err != nil {
		return fmt.Errorf("failed to ensure schema app_auth: %w", err)
	}

	if err := d.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to auto-migrate auth tables: %w", err)
	}

	return nil
}
