// Package subscribers adapts inbound NATS events from the catalog and
// staffing services into local upserts, grounded on the teacher's
// NatsEventHandlers (business.service.created/business.availability.updated).
package subscribers

import (
	"encoding/json"
	"fmt"

	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogEventHandlers keeps booking-core's local Service mirror in sync
// with the catalog service of record. ServiceCategory rows are not upserted
// by any handler here.
type CatalogEventHandlers struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewCatalogEventHandlers(db *gorm.DB, log *logger.Logger) *CatalogEventHandlers {
	return &CatalogEventHandlers{DB: db, Logger: log}
}

// ServiceUpdatedPayload mirrors the catalog.service.updated event body.
type ServiceUpdatedPayload struct {
	ID              string  `json:"id"`
	CategoryID      string  `json:"category_id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	BufferBefore    int     `json:"buffer_before_minutes"`
	BufferAfter     int     `json:"buffer_after_minutes"`
	PriceCents      int64   `json:"price_cents"`
	Active          bool    `json:"active"`
	AssignmentType  string  `json:"assignment_type"`
	FixedWorkerID   *string `json:"fixed_worker_id,omitempty"`
}

// HandleServiceUpdated processes catalog.service.updated, upserting the
// local Service row the availability planner reads from.
func (h *CatalogEventHandlers) HandleServiceUpdated(data []byte) error {
	var payload ServiceUpdatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.Logger.Error("failed to unmarshal ServiceUpdatedPayload", "error", err, "raw", string(data))
		return fmt.Errorf("unmarshal ServiceUpdatedPayload: %w", err)
	}

	h.Logger.Info("processing catalog.service.updated event", "service_id", payload.ID)

	svc := models.Service{
		ID:              payload.ID,
		CategoryID:      payload.CategoryID,
		Name:            payload.Name,
		DurationMinutes: payload.DurationMinutes,
		BufferBefore:    payload.BufferBefore,
		BufferAfter:     payload.BufferAfter,
		PriceCents:      payload.PriceCents,
		Active:          payload.Active,
		AssignmentType:  models.AssignmentType(payload.AssignmentType),
		FixedWorkerID:   payload.FixedWorkerID,
	}

	err := h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category_id", "name", "duration_minutes", "buffer_before", "buffer_after",
			"price_cents", "active", "assignment_type", "fixed_worker_id", "updated_at",
		}),
	}).Create(&svc).Error
	if err != nil {
		h.Logger.Error("failed to upsert service", "error", err, "service_id", payload.ID)
		return fmt.Errorf("upsert service: %w", err)
	}

	h.Logger.Info("processed catalog.service.updated event", "service_id", payload.ID)
	return nil
}

// StaffingEventHandlers keeps booking-core's local Worker mirror in sync
// with the staffing service of record.
type StaffingEventHandlers struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewStaffingEventHandlers(db *gorm.DB, log *logger.Logger) *StaffingEventHandlers {
	return &StaffingEventHandlers{DB: db, Logger: log}
}

// WorkerUpdatedPayload mirrors the staffing.worker.updated event body.
type WorkerUpdatedPayload struct {
	ID          string  `json:"id"`
	Role        string  `json:"role"`
	DisplayName string  `json:"display_name"`
	Active      bool    `json:"active"`
	PrincipalID *string `json:"principal_id,omitempty"`
}

// HandleWorkerUpdated processes staffing.worker.updated, upserting the
// local Worker row the availability planner and agenda views read from.
func (h *StaffingEventHandlers) HandleWorkerUpdated(data []byte) error {
	var payload WorkerUpdatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.Logger.Error("failed to unmarshal WorkerUpdatedPayload", "error", err, "raw", string(data))
		return fmt.Errorf("unmarshal WorkerUpdatedPayload: %w", err)
	}

	h.Logger.Info("processing staffing.worker.updated event", "worker_id", payload.ID)

	worker := models.Worker{
		ID:          payload.ID,
		Role:        models.WorkerRole(payload.Role),
		DisplayName: payload.DisplayName,
		Active:      payload.Active,
		PrincipalID: payload.PrincipalID,
	}

	err := h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"role", "display_name", "active", "principal_id", "updated_at",
		}),
	}).Create(&worker).Error
	if err != nil {
		h.Logger.Error("failed to upsert worker", "error", err, "worker_id", payload.ID)
		return fmt.Errorf("upsert worker: %w", err)
	}

	h.Logger.Info("processed staffing.worker.updated event", "worker_id", payload.ID)
	return nil
}
