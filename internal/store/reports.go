package store

import (
	"context"
	"fmt"

	"github.com/iyou00/chatui/internal/models"
)

// ReportFilters holds optional filters for listing reports.
type ReportFilters struct {
	TaskID string
	RunID  string
	Status string
	Limit  int
}

// CreateReport inserts r and returns its assigned ID.
func (s *Store) CreateReport(ctx context.Context, r *models.Report) (uint, error) {
	if r.TaskID == "" {
		return 0, fmt.Errorf("store: report task ID is required")
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return 0, fmt.Errorf("store: create report: %w", err)
	}
	return r.ID, nil
}

// GetReport retrieves a report by ID.
func (s *Store) GetReport(ctx context.Context, id uint) (*models.Report, error) {
	var r models.Report
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("store: report %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get report %d: %w", id, err)
	}
	return &r, nil
}

// ListReports returns reports matching filters, newest first.
func (s *Store) ListReports(ctx context.Context, filters ReportFilters) ([]models.Report, error) {
	q := s.db.WithContext(ctx).Model(&models.Report{})
	if filters.TaskID != "" {
		q = q.Where("task_id = ?", filters.TaskID)
	}
	if filters.RunID != "" {
		q = q.Where("run_id = ?", filters.RunID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var reports []models.Report
	if err := q.Order("created_at DESC, id DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	return reports, nil
}
