package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shearline/booking-core/internal/models"
	"gorm.io/gorm"
)

// GetServicesByIDs bulk-fetches services, preserving no particular order —
// callers that need request order re-key by ID.
func (f *Facade) GetServicesByIDs(ctx context.Context, ids []string) ([]models.Service, error) {
	var services []models.Service
	if err := f.db.WithContext(ctx).Where("id IN ?", ids).Find(&services).Error; err != nil {
		return nil, fmt.Errorf("fetching services: %w", err)
	}
	return services, nil
}

// GetServiceCategoriesByIDs bulk-fetches categories, used to resolve the
// default_fixed_worker fallback (§4.3).
func (f *Facade) GetServiceCategoriesByIDs(ctx context.Context, ids []string) ([]models.ServiceCategory, error) {
	var categories []models.ServiceCategory
	if err := f.db.WithContext(ctx).Where("id IN ?", ids).Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("fetching service categories: %w", err)
	}
	return categories, nil
}

// GetWorkerByID fetches one worker, returning nil, nil if not found.
func (f *Facade) GetWorkerByID(ctx context.Context, id string) (*models.Worker, error) {
	var w models.Worker
	if err := f.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching worker %s: %w", id, err)
	}
	return &w, nil
}

// GetActiveWorkersByRole returns active workers of the given role, ordered
// by id — the NEAREST barber-candidate ordering §4.3 asks for.
func (f *Facade) GetActiveWorkersByRole(ctx context.Context, role models.WorkerRole) ([]models.Worker, error) {
	var workers []models.Worker
	err := f.db.WithContext(ctx).
		Where("role = ? AND active = ?", role, true).
		Order("id asc").
		Find(&workers).Error
	if err != nil {
		return nil, fmt.Errorf("fetching active %s workers: %w", role, err)
	}
	return workers, nil
}

// GetWeeklyRules bulk-fetches active weekly schedule rules for the given
// workers, across all days (callers filter by day_of_week in-memory since
// the full week is cheap to cache per request).
func (f *Facade) GetWeeklyRules(ctx context.Context, workerIDs []string) ([]models.WeeklyScheduleRule, error) {
	var rules []models.WeeklyScheduleRule
	err := f.db.WithContext(ctx).
		Where("worker_id IN ? AND active = ?", workerIDs, true).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("fetching weekly rules: %w", err)
	}
	return rules, nil
}

// GetRecurringBreaks bulk-fetches recurring breaks for the given workers.
func (f *Facade) GetRecurringBreaks(ctx context.Context, workerIDs []string) ([]models.RecurringBreak, error) {
	var breaks []models.RecurringBreak
	if err := f.db.WithContext(ctx).Where("worker_id IN ?", workerIDs).Find(&breaks).Error; err != nil {
		return nil, fmt.Errorf("fetching recurring breaks: %w", err)
	}
	return breaks, nil
}

// GetExceptionsForDate bulk-fetches calendar exceptions for the given
// workers on one date, ordered by id so insertion order is preserved
// (§4.2 step 3 processes exceptions "in order").
func (f *Facade) GetExceptionsForDate(ctx context.Context, workerIDs []string, date time.Time) ([]models.CalendarException, error) {
	var exceptions []models.CalendarException
	err := f.db.WithContext(ctx).
		Where("worker_id IN ? AND date = ?", workerIDs, date.Format("2006-01-02")).
		Order("id asc").
		Find(&exceptions).Error
	if err != nil {
		return nil, fmt.Errorf("fetching calendar exceptions: %w", err)
	}
	return exceptions, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
