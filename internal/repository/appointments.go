package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shearline/booking-core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetBlocksForWorkersInWindow bulk-fetches every block for the given
// workers intersecting [windowStart, windowEnd), the ExistingBusy input to
// C2 (§4.2 step 4). Cancel deletes its appointment's blocks outright, but
// MarkNoShow only flips status and leaves blocks in place, so a status
// filter is still required here: only RESERVED/ATTENDED appointments hold
// a worker's calendar busy, matching FindIntersectingBlocks below.
func (f *Facade) GetBlocksForWorkersInWindow(ctx context.Context, workerIDs []string, windowStart, windowEnd time.Time) ([]models.AppointmentBlock, error) {
	var blocks []models.AppointmentBlock
	err := f.db.WithContext(ctx).
		Joins("JOIN appointments ON appointments.id = appointment_blocks.appointment_id").
		Where("appointment_blocks.worker_id IN ? AND appointment_blocks.start_datetime < ? AND appointment_blocks.end_datetime > ?", workerIDs, windowEnd, windowStart).
		Where("appointments.status IN ?", []models.AppointmentStatus{models.AppointmentStatusReserved, models.AppointmentStatusAttended}).
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("fetching blocks in window: %w", err)
	}
	return blocks, nil
}

// LockWorkers takes a pessimistic row lock (SELECT ... FOR UPDATE) on the
// given worker ids within tx, the first line of defense against concurrent
// double-booking (§4.5 step 3a, §5).
func (f *Facade) LockWorkers(tx *gorm.DB, workerIDs []string) ([]models.Worker, error) {
	var workers []models.Worker
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", workerIDs).
		Order("id asc").
		Find(&workers).Error
	if err != nil {
		return nil, fmt.Errorf("locking workers: %w", err)
	}
	return workers, nil
}

// FindIntersectingBlocks finds existing blocks for workerID overlapping
// [start, end), excluding the given appointment (used by Reschedule to
// ignore the appointment's own blocks). Only blocks belonging to
// RESERVED/ATTENDED appointments count as busy (§4.2 step 4).
func (f *Facade) FindIntersectingBlocks(tx *gorm.DB, workerID string, start, end time.Time, excludeAppointmentID string) ([]models.AppointmentBlock, error) {
	q := tx.Joins("JOIN appointments ON appointments.id = appointment_blocks.appointment_id").
		Where("appointment_blocks.worker_id = ?", workerID).
		Where("appointment_blocks.start_datetime < ? AND appointment_blocks.end_datetime > ?", end, start).
		Where("appointments.status IN ?", []models.AppointmentStatus{models.AppointmentStatusReserved, models.AppointmentStatusAttended})
	if excludeAppointmentID != "" {
		q = q.Where("appointment_blocks.appointment_id <> ?", excludeAppointmentID)
	}
	var blocks []models.AppointmentBlock
	if err := q.Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("finding intersecting blocks: %w", err)
	}
	return blocks, nil
}

// CreateAppointmentTree inserts the appointment, its blocks, and every
// block's service lines within tx. A unique constraint violation on
// (worker_id, start_datetime) is classified as a conflict (§4.5 step 3d).
func (f *Facade) CreateAppointmentTree(tx *gorm.DB, appt *models.Appointment, blocks []*models.AppointmentBlock, linesByBlockIndex map[int][]*models.AppointmentServiceLine) error {
	if err := tx.Create(appt).Error; err != nil {
		return fmt.Errorf("creating appointment: %w", err)
	}
	for i, b := range blocks {
		b.AppointmentID = appt.ID
		if err := tx.Create(b).Error; err != nil {
			if isUniqueViolation(err) {
				return &conflictError{err: err}
			}
			return fmt.Errorf("creating appointment block: %w", err)
		}
		for _, l := range linesByBlockIndex[i] {
			l.BlockID = b.ID
			if err := tx.Create(l).Error; err != nil {
				return fmt.Errorf("creating service line: %w", err)
			}
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "uniq_worker_start_datetime") || strings.Contains(msg, "UNIQUE")
}

// GetAppointmentByID eager-loads an appointment with its customer, blocks,
// each block's worker, and each block's service lines — the N+1-avoidance
// shape §4.7 requires, grounded on the original's agenda.py
// select_related/Prefetch chain.
func (f *Facade) GetAppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	q := f.db.WithContext(ctx).
		Preload("Customer").
		Preload("Blocks").
		Preload("Blocks.Worker").
		Preload("Blocks.ServiceLines")
	if e := q.First(&appt, "id = ?", id).Error; e != nil {
		if isNotFound(e) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching appointment %s: %w", id, e)
	}
	return &appt, nil
}

// LockAppointmentByID takes a pessimistic row lock on the appointment
// within tx, used by Cancel/Reschedule/InlineEdit/RegisterPayment/
// MarkAttended/MarkNoShow before inspecting or mutating its status.
func (f *Facade) LockAppointmentByID(tx *gorm.DB, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Blocks").
		First(&appt, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("locking appointment %s: %w", id, err)
	}
	return &appt, nil
}

// SaveAppointment persists the full Appointment row (used after status/
// payment/cancellation/reschedule mutations).
func (f *Facade) SaveAppointment(tx *gorm.DB, appt *models.Appointment) error {
	if err := tx.Save(appt).Error; err != nil {
		return fmt.Errorf("saving appointment %s: %w", appt.ID, err)
	}
	return nil
}

// DeleteBlocksForAppointment deletes every block (cascading to its service
// lines) belonging to an appointment — Cancel's calendar-freeing step
// (§4.6, Open Question 1: this spec deletes rather than retains).
func (f *Facade) DeleteBlocksForAppointment(tx *gorm.DB, appointmentID string) error {
	var blockIDs []string
	if err := tx.Model(&models.AppointmentBlock{}).Where("appointment_id = ?", appointmentID).Pluck("id", &blockIDs).Error; err != nil {
		return fmt.Errorf("listing blocks for cancel: %w", err)
	}
	if len(blockIDs) == 0 {
		return nil
	}
	if err := tx.Where("block_id IN ?", blockIDs).Delete(&models.AppointmentServiceLine{}).Error; err != nil {
		return fmt.Errorf("deleting service lines: %w", err)
	}
	if err := tx.Where("appointment_id = ?", appointmentID).Delete(&models.AppointmentBlock{}).Error; err != nil {
		return fmt.Errorf("deleting blocks: %w", err)
	}
	return nil
}

// UpdateBlockTiming updates one existing block's start/end/sequence in
// place — Reschedule moves times, never personnel (§4.6).
func (f *Facade) UpdateBlockTiming(tx *gorm.DB, blockID string, start, end time.Time, sequence int) error {
	err := tx.Model(&models.AppointmentBlock{}).Where("id = ?", blockID).
		Updates(map[string]interface{}{"start_datetime": start, "end_datetime": end, "sequence": sequence}).Error
	if err != nil {
		if isUniqueViolation(err) {
			return &conflictError{err: err}
		}
		return fmt.Errorf("updating block %s: %w", blockID, err)
	}
	return nil
}

// GetCustomerByFrequentIdentity looks up a FREQUENT customer by exact
// (type, phone, birth_date) match (§4.5 step 2, §8 scenario S5).
func (f *Facade) GetCustomerByFrequentIdentity(ctx context.Context, phone string, birthDate time.Time) (*models.Customer, error) {
	var c models.Customer
	err := f.db.WithContext(ctx).
		Where("type = ? AND phone = ? AND birth_date = ?", models.CustomerTypeFrequent, phone, birthDate).
		First(&c).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up frequent customer: %w", err)
	}
	return &c, nil
}

// CreateCustomer inserts a new Customer row within tx.
func (f *Facade) CreateCustomer(tx *gorm.DB, c *models.Customer) error {
	if err := tx.Create(c).Error; err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

// UpdateCustomerName syncs a FREQUENT customer's display name when it
// changed between visits (§4.5 step 2 "optionally sync name").
func (f *Facade) UpdateCustomerName(tx *gorm.DB, customerID, name string) error {
	if err := tx.Model(&models.Customer{}).Where("id = ?", customerID).Update("name", name).Error; err != nil {
		return fmt.Errorf("syncing customer name: %w", err)
	}
	return nil
}
