package store

import (
	"context"
	"fmt"

	"github.com/iyou00/chatui/internal/models"
)

// GetTemplate returns the content of the prompt template with the given ID.
func (s *Store) GetTemplate(ctx context.Context, id uint) (string, error) {
	var tpl models.PromptTemplate
	if err := s.db.WithContext(ctx).First(&tpl, id).Error; err != nil {
		if notFound(err) {
			return "", fmt.Errorf("store: template %d: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("store: get template %d: %w", id, err)
	}
	return tpl.Content, nil
}

// ListTemplates returns all prompt templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]models.PromptTemplate, error) {
	var tpls []models.PromptTemplate
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tpls).Error; err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	return tpls, nil
}
