package db

import (
	"fmt"

	"github.com/iyou00/chatui/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Task{},
		&models.Report{},
		&models.PromptTemplate{},
		&models.CachedMessage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedTemplates upserts named prompt templates, updating content on conflict.
func SeedTemplates(db *gorm.DB, templates map[string]string) error {
	for name, content := range templates {
		tpl := models.PromptTemplate{Name: name, Content: content}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).Create(&tpl)
		if result.Error != nil {
			return fmt.Errorf("db: seed template %q: %w", name, result.Error)
		}
	}
	return nil
}
