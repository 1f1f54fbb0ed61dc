package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shearline/booking-core/internal/models"
)

// StaffAgendaFilters narrows the staff day view (§4.7).
type StaffAgendaFilters struct {
	WorkerID string
	Status   models.AppointmentStatus
	Query    string // case-insensitive substring over customer name/phone
}

// ListStaffAgenda returns every appointment whose start lies in
// [dayStart, dayEnd), eager-loaded with customer, blocks, blocks' workers,
// and service lines in a fixed, small number of queries — grounded on the
// original's agenda.py select_related/Prefetch chain, translated into
// explicit bulk preloads instead of ORM-lazy relations (§9).
func (f *Facade) ListStaffAgenda(ctx context.Context, dayStart, dayEnd time.Time, filters StaffAgendaFilters) ([]models.Appointment, error) {
	q := f.db.WithContext(ctx).
		Preload("Customer").
		Preload("Blocks").
		Preload("Blocks.Worker").
		Preload("Blocks.ServiceLines").
		Where("start_datetime >= ? AND start_datetime < ?", dayStart, dayEnd)

	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Query != "" {
		like := "%" + filters.Query + "%"
		q = q.Joins("JOIN customers ON customers.id = appointments.customer_id").
			Where("customers.name ILIKE ? OR customers.phone ILIKE ?", like, like)
	}
	if filters.WorkerID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM appointment_blocks b WHERE b.appointment_id = appointments.id AND b.worker_id = ?)", filters.WorkerID)
	}

	var appointments []models.Appointment
	if err := q.Order("start_datetime asc").Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("listing staff agenda: %w", err)
	}
	return appointments, nil
}

// ListWorkerAgenda returns appointments with at least one block for
// workerID on the given day (§4.7 worker day view).
func (f *Facade) ListWorkerAgenda(ctx context.Context, workerID string, dayStart, dayEnd time.Time) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := f.db.WithContext(ctx).
		Preload("Customer").
		Preload("Blocks").
		Preload("Blocks.Worker").
		Preload("Blocks.ServiceLines").
		Joins("JOIN appointment_blocks b ON b.appointment_id = appointments.id").
		Where("b.worker_id = ? AND appointments.start_datetime >= ? AND appointments.start_datetime < ?", workerID, dayStart, dayEnd).
		Group("appointments.id").
		Order("appointments.start_datetime asc").
		Find(&appointments).Error
	if err != nil {
		return nil, fmt.Errorf("listing worker agenda: %w", err)
	}
	return appointments, nil
}
