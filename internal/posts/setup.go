package posts

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/CampusConnect/CC-Backend/internal/db"
)

func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "campus"); err != nil {
		return fmt.Errorf("failed to ensure schema campus: %w", err)
	}

	if err := d.AutoMigrate(&Post{}, &Participant{}); err != nil {
		return fmt.Errorf("failed to auto-migrate posts tables: %w", err)
	}

	return nil
}
