package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shearline/booking-core/internal/apperr"
	"github.com/shearline/booking-core/internal/config"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/pkg/events"
	"github.com/shearline/booking-core/pkg/logger"
	"github.com/shearline/booking-core/pkg/optiontoken"
	"gorm.io/gorm"
)

// LifecycleStore is the slice of the repository facade C6 needs: appointment
// locking/lookup, worker locking for Reschedule's conflict check, block and
// appointment mutation, and best-effort audit. Satisfied by
// *repository.Facade.
type LifecycleStore interface {
	GetAppointmentByID(ctx context.Context, id string) (*models.Appointment, error)
	LockAppointmentByID(tx *gorm.DB, id string) (*models.Appointment, error)
	LockWorkers(tx *gorm.DB, workerIDs []string) ([]models.Worker, error)
	FindIntersectingBlocks(tx *gorm.DB, workerID string, start, end time.Time, excludeAppointmentID string) ([]models.AppointmentBlock, error)
	DeleteBlocksForAppointment(tx *gorm.DB, appointmentID string) error
	UpdateBlockTiming(tx *gorm.DB, blockID string, start, end time.Time, sequence int) error
	SaveAppointment(tx *gorm.DB, appt *models.Appointment) error
	CreateAuditInTx(tx *gorm.DB, audit *models.AppointmentAudit) error
	WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LifecycleService implements C6: Cancel, MarkAttended, MarkNoShow,
// RegisterPayment, Reschedule, InlineEdit. Grounded on the teacher's
// BookingService.UpdateBookingStatus/CancelBooking shape, generalized to
// spec.md's richer state machine and audit requirements.
type LifecycleService struct {
	repo      LifecycleStore
	tokens    *optiontoken.Manager
	publisher events.Publisher
	cfg       config.Booking
	logger    *logger.Logger
}

func NewLifecycleService(repo LifecycleStore, tokens *optiontoken.Manager, publisher events.Publisher, cfg config.Booking, log *logger.Logger) *LifecycleService {
	return &LifecycleService{repo: repo, tokens: tokens, publisher: publisher, cfg: cfg, logger: log}
}

func (s *LifecycleService) withinCancelWindow(startDatetime time.Time) bool {
	return time.Now().Before(startDatetime.Add(-time.Duration(s.cfg.CancelWindowMinutes) * time.Minute))
}

// Cancel implements §4.6 Cancel.
func (s *LifecycleService) Cancel(ctx context.Context, principal models.Role, appointmentID, reason string, force bool) (*AppointmentSummary, error) {
	var result *AppointmentSummary
	alreadyCancelled := false
	err := s.repo.WithinTransaction(ctx, func(tx *gorm.DB) error {
		appt, lockErr := s.repo.LockAppointmentByID(tx, appointmentID)
		if lockErr != nil {
			return lockErr
		}
		if appt == nil {
			return apperr.New(apperr.KindNotFound, "appointment not found")
		}
		if appt.Status == models.AppointmentStatusCancelled {
			result = toSummary(appt)
			alreadyCancelled = true
			return nil
		}
		if appt.Status.IsTerminal() {
			return apperr.New(apperr.KindInvalidState, "appointment is already in a terminal state")
		}
		if !force && !principal.IsStaffOrAdmin() && !s.withinCancelWindow(appt.StartDatetime) {
			return apperr.New(apperr.KindPolicyDenied, "cancellation window has passed")
		}

		freedSummary := summarizeBlocks(appt.Blocks)
		if delErr := s.repo.DeleteBlocksForAppointment(tx, appt.ID); delErr != nil {
			return delErr
		}

		now := time.Now()
		principalStr := string(principal)
		appt.Status = models.AppointmentStatusCancelled
		appt.CancelledAt = &now
		appt.CancelledBy = &principalStr
		appt.CancelReason = reason
		if saveErr := s.repo.SaveAppointment(tx, appt); saveErr != nil {
			return saveErr
		}

		audit := &models.AppointmentAudit{
			AppointmentID: appt.ID,
			Action:        models.AuditActionCancel,
			PerformedBy:   principalStr,
			PerformedAt:   now,
			Reason:        reason,
			Detail:        repository.NewAuditDetail(map[string]interface{}{"freed_blocks": freedSummary}),
		}
		if auditErr := s.repo.CreateAuditInTx(tx, audit); auditErr != nil {
			s.logger.Warn("failed to record cancel audit inline", "error", auditErr)
		}

		result = toSummary(appt)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !alreadyCancelled {
		s.publisher.Publish(events.SubjectAppointmentCancelled, map[string]interface{}{"appointment_id": appointmentID})
	}
	return result, nil
}

// MarkAttended implements §4.6 MarkAttended. Staff/admin only.
func (s *LifecycleService) MarkAttended(ctx context.Context, principal models.Role, appointmentID string) (*AppointmentSummary, error) {
	summary, err := s.transitionTerminal(ctx, principal, appointmentID, models.AppointmentStatusAttended)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(events.SubjectAppointmentAttended, map[string]interface{}{"appointment_id": appointmentID})
	return summary, nil
}

// MarkNoShow implements §4.6 MarkNoShow. Staff/admin only.
func (s *LifecycleService) MarkNoShow(ctx context.Context, principal models.Role, appointmentID string) (*AppointmentSummary, error) {
	summary, err := s.transitionTerminal(ctx, principal, appointmentID, models.AppointmentStatusNoShow)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(events.SubjectAppointmentNoShow, map[string]interface{}{"appointment_id": appointmentID})
	return summary, nil
}

func (s *LifecycleService) transitionTerminal(ctx context.Context, principal models.Role, appointmentID string, newStatus models.AppointmentStatus) (*AppointmentSummary, error) {
	if !principal.IsStaffOrAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "staff or admin role required")
	}
	var result *AppointmentSummary
	err := s.repo.WithinTransaction(ctx, func(tx *gorm.DB) error {
		appt, lockErr := s.repo.LockAppointmentByID(tx, appointmentID)
		if lockErr != nil {
			return lockErr
		}
		if appt == nil {
			return apperr.New(apperr.KindNotFound, "appointment not found")
		}
		if appt.Status != models.AppointmentStatusReserved {
			return apperr.New(apperr.KindInvalidState, fmt.Sprintf("cannot transition from %s to %s", appt.Status, newStatus))
		}
		appt.Status = newStatus
		if saveErr := s.repo.SaveAppointment(tx, appt); saveErr != nil {
			return saveErr
		}
		audit := &models.AppointmentAudit{
			AppointmentID: appt.ID,
			Action:        models.AuditActionStatusChange,
			PerformedBy:   string(principal),
			PerformedAt:   time.Now(),
			Detail:        repository.NewAuditDetail(map[string]interface{}{"new_status": newStatus}),
		}
		if auditErr := s.repo.CreateAuditInTx(tx, audit); auditErr != nil {
			s.logger.Warn("failed to record status-change audit inline", "error", auditErr)
		}
		result = toSummary(appt)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// RegisterPayment implements §4.6 RegisterPayment. Staff/admin only.
func (s *LifecycleService) RegisterPayment(ctx context.Context, principal models.Role, appointmentID string, paidTotal int64, paymentMethod string) (*AppointmentSummary, error) {
	if !principal.IsStaffOrAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "staff or admin role required")
	}
	if paidTotal < 0 {
		return nil, apperr.New(apperr.KindValidation, "paid_total must be non-negative")
	}
	method := models.PaymentMethod(strings.ToUpper(paymentMethod))
	if paymentMethod != "" {
		switch method {
		case models.PaymentMethodCash, models.PaymentMethodCard, models.PaymentMethodTransfer:
		default:
			return nil, apperr.New(apperr.KindValidation, "payment_method must be CASH, CARD, or TRANSFER")
		}
	}

	var result *AppointmentSummary
	err := s.repo.WithinTransaction(ctx, func(tx *gorm.DB) error {
		appt, lockErr := s.repo.LockAppointmentByID(tx, appointmentID)
		if lockErr != nil {
			return lockErr
		}
		if appt == nil {
			return apperr.New(apperr.KindNotFound, "appointment not found")
		}
		now := time.Now()
		principalStr := string(principal)
		appt.PaidTotal = &paidTotal
		if paymentMethod != "" {
			appt.PaymentMethod = &method
		}
		appt.PaidAt = &now
		appt.PaidBy = &principalStr
		if saveErr := s.repo.SaveAppointment(tx, appt); saveErr != nil {
			return saveErr
		}
		audit := &models.AppointmentAudit{
			AppointmentID: appt.ID,
			Action:        models.AuditActionPaymentRecorded,
			PerformedBy:   principalStr,
			PerformedAt:   now,
			Detail:        repository.NewAuditDetail(map[string]interface{}{"paid_total_cents": paidTotal, "payment_method": method}),
		}
		if auditErr := s.repo.CreateAuditInTx(tx, audit); auditErr != nil {
			s.logger.Warn("failed to record payment audit inline", "error", auditErr)
		}
		result = toSummary(appt)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	s.publisher.Publish(events.SubjectAppointmentPaymentRecorded, map[string]interface{}{"appointment_id": appointmentID, "paid_total_cents": paidTotal})
	return result, nil
}

// PaymentSummary is the read-only charge summary supplemented from the
// original's AppointmentChargeSummaryAPIView (§9).
type PaymentSummary struct {
	ID                  string                   `json:"id"`
	Status              models.AppointmentStatus `json:"status"`
	RecommendedSubtotal int64                    `json:"recommended_subtotal_cents"`
	RecommendedDiscount int64                    `json:"recommended_discount_cents"`
	RecommendedTotal    int64                    `json:"recommended_total_cents"`
	PaidTotal           *int64                   `json:"paid_total_cents,omitempty"`
	PaymentMethod       *models.PaymentMethod    `json:"payment_method,omitempty"`
	PaidAt              *time.Time               `json:"paid_at,omitempty"`
	Outstanding         int64                    `json:"outstanding_cents"`
}

// GetPaymentSummary implements the supplemented payment-summary read
// endpoint. Staff/admin only, read-only, no locking required.
func (s *LifecycleService) GetPaymentSummary(ctx context.Context, principal models.Role, appointmentID string) (*PaymentSummary, error) {
	if !principal.IsStaffOrAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "staff or admin role required")
	}
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching appointment", err)
	}
	if appt == nil {
		return nil, apperr.New(apperr.KindNotFound, "appointment not found")
	}
	var paid int64
	if appt.PaidTotal != nil {
		paid = *appt.PaidTotal
	}
	return &PaymentSummary{
		ID:                  appt.ID,
		Status:              appt.Status,
		RecommendedSubtotal: appt.RecommendedSubtotal,
		RecommendedDiscount: appt.RecommendedDiscount,
		RecommendedTotal:    appt.RecommendedTotal,
		PaidTotal:           appt.PaidTotal,
		PaymentMethod:       appt.PaymentMethod,
		PaidAt:              appt.PaidAt,
		Outstanding:         appt.RecommendedTotal - paid,
	}, nil
}

// Reschedule implements §4.6 Reschedule. Staff/admin only.
func (s *LifecycleService) Reschedule(ctx context.Context, principal models.Role, appointmentID, newOptionToken, reason string) (*AppointmentSummary, error) {
	if !principal.IsStaffOrAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "staff or admin role required")
	}
	payload, err := s.tokens.Verify(newOptionToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOptionInvalid, "option token invalid", err)
	}

	var result *AppointmentSummary
	err = s.repo.WithinTransaction(ctx, func(tx *gorm.DB) error {
		appt, lockErr := s.repo.LockAppointmentByID(tx, appointmentID)
		if lockErr != nil {
			return lockErr
		}
		if appt == nil {
			return apperr.New(apperr.KindNotFound, "appointment not found")
		}
		if appt.Status != models.AppointmentStatusReserved {
			return apperr.New(apperr.KindInvalidState, "only a RESERVED appointment can be rescheduled")
		}
		if !principal.IsStaffOrAdmin() && !s.withinCancelWindow(appt.StartDatetime) {
			return apperr.New(apperr.KindPolicyDenied, "reschedule window has passed")
		}

		existingWorkers := workerSet(appt.Blocks)
		newWorkers := map[string]bool{}
		for _, b := range payload.Blocks {
			newWorkers[b.WorkerID] = true
		}
		if !sameSet(existingWorkers, newWorkers) {
			return apperr.New(apperr.KindValidation, "reschedule must keep the same set of workers")
		}
		if len(payload.Blocks) != len(appt.Blocks) {
			return apperr.New(apperr.KindValidation, "reschedule must keep the same number of blocks")
		}

		workerIDList := make([]string, 0, len(newWorkers))
		for id := range newWorkers {
			workerIDList = append(workerIDList, id)
		}
		if _, lockErr := s.repo.LockWorkers(tx, workerIDList); lockErr != nil {
			return lockErr
		}

		for _, b := range payload.Blocks {
			intersecting, findErr := s.repo.FindIntersectingBlocks(tx, b.WorkerID, b.Start, b.End, appt.ID)
			if findErr != nil {
				return findErr
			}
			if len(intersecting) > 0 {
				return apperr.New(apperr.KindConflict, "requested slot is no longer available")
			}
		}

		before := summarizeBlocks(appt.Blocks)
		sortedExisting := append([]models.AppointmentBlock{}, appt.Blocks...)
		sort.Slice(sortedExisting, func(i, j int) bool { return sortedExisting[i].Sequence < sortedExisting[j].Sequence })
		for i, b := range payload.Blocks {
			if updErr := s.repo.UpdateBlockTiming(tx, sortedExisting[i].ID, b.Start, b.End, b.Sequence); updErr != nil {
				if repository.IsConflict(updErr) {
					return apperr.New(apperr.KindConflict, "requested slot is no longer available")
				}
				return updErr
			}
		}

		appt.StartDatetime = payload.AppointmentStart
		appt.EndDatetime = payload.AppointmentEnd
		if saveErr := s.repo.SaveAppointment(tx, appt); saveErr != nil {
			return saveErr
		}

		audit := &models.AppointmentAudit{
			AppointmentID: appt.ID,
			Action:        models.AuditActionReschedule,
			PerformedBy:   string(principal),
			PerformedAt:   time.Now(),
			Reason:        reason,
			Detail:        repository.NewAuditDetail(map[string]interface{}{"before": before, "after": payload}),
		}
		if auditErr := s.repo.CreateAuditInTx(tx, audit); auditErr != nil {
			s.logger.Warn("failed to record reschedule audit inline", "error", auditErr)
		}
		result = toSummary(appt)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	s.publisher.Publish(events.SubjectAppointmentRescheduled, map[string]interface{}{"appointment_id": appointmentID})
	return result, nil
}

// InlineEditInput is the explicit field whitelist §9 calls for, replacing
// the reflection-driven partial update the original source used.
type InlineEditInput struct {
	StartDatetime *time.Time
	DurationMin   *int
	Status        *models.AppointmentStatus
	Note          *string
}

// InlineEdit implements §4.6 InlineEdit: no availability validation, an
// explicit field whitelist, blocks re-synced to the new start/end.
func (s *LifecycleService) InlineEdit(ctx context.Context, principal models.Role, appointmentID string, fields InlineEditInput) (*AppointmentSummary, error) {
	if !principal.IsStaffOrAdmin() {
		return nil, apperr.New(apperr.KindUnauthorized, "staff or admin role required")
	}

	var result *AppointmentSummary
	err := s.repo.WithinTransaction(ctx, func(tx *gorm.DB) error {
		appt, lockErr := s.repo.LockAppointmentByID(tx, appointmentID)
		if lockErr != nil {
			return lockErr
		}
		if appt == nil {
			return apperr.New(apperr.KindNotFound, "appointment not found")
		}

		before := map[string]interface{}{
			"start_datetime": appt.StartDatetime, "end_datetime": appt.EndDatetime,
			"status": appt.Status, "note": appt.Note,
		}

		if fields.Status != nil {
			if appt.Status.IsTerminal() && *fields.Status != appt.Status {
				return apperr.New(apperr.KindInvalidState, "cannot transition out of a terminal status")
			}
			appt.Status = *fields.Status
		}

		if fields.StartDatetime != nil {
			duration := appt.EndDatetime.Sub(appt.StartDatetime)
			if fields.DurationMin != nil {
				duration = time.Duration(*fields.DurationMin) * time.Minute
			}
			newStart := *fields.StartDatetime
			newEnd := newStart.Add(duration)
			shift := newStart.Sub(appt.StartDatetime)
			for i := range appt.Blocks {
				appt.Blocks[i].StartDatetime = appt.Blocks[i].StartDatetime.Add(shift)
				appt.Blocks[i].EndDatetime = appt.Blocks[i].EndDatetime.Add(shift)
				if updErr := s.repo.UpdateBlockTiming(tx, appt.Blocks[i].ID, appt.Blocks[i].StartDatetime, appt.Blocks[i].EndDatetime, appt.Blocks[i].Sequence); updErr != nil {
					return updErr
				}
			}
			appt.StartDatetime = newStart
			appt.EndDatetime = newEnd
		}

		if fields.Note != nil {
			appt.Note = *fields.Note
		}

		if saveErr := s.repo.SaveAppointment(tx, appt); saveErr != nil {
			return saveErr
		}

		after := map[string]interface{}{
			"start_datetime": appt.StartDatetime, "end_datetime": appt.EndDatetime,
			"status": appt.Status, "note": appt.Note,
		}
		audit := &models.AppointmentAudit{
			AppointmentID: appt.ID,
			Action:        models.AuditActionInlineEdit,
			PerformedBy:   string(principal),
			PerformedAt:   time.Now(),
			Detail:        repository.NewAuditDetail(map[string]interface{}{"before": before, "after": after}),
		}
		if auditErr := s.repo.CreateAuditInTx(tx, audit); auditErr != nil {
			s.logger.Warn("failed to record inline-edit audit inline", "error", auditErr)
		}
		result = toSummary(appt)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func toSummary(appt *models.Appointment) *AppointmentSummary {
	return &AppointmentSummary{
		ID: appt.ID, Status: appt.Status, StartDatetime: appt.StartDatetime, EndDatetime: appt.EndDatetime,
		CustomerID: appt.CustomerID, RecommendedTotal: appt.RecommendedTotal,
	}
}

func summarizeBlocks(blocks []models.AppointmentBlock) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, fmt.Sprintf("%s: %s - %s", b.WorkerID, b.StartDatetime.Format(time.RFC3339), b.EndDatetime.Format(time.RFC3339)))
	}
	return out
}

func workerSet(blocks []models.AppointmentBlock) map[string]bool {
	out := map[string]bool{}
	for _, b := range blocks {
		out[b.WorkerID] = true
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// classify passes an already-classified error through unchanged and wraps
// anything else (a bare repository/storage error) as internal.
func classify(err error) error {
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "lifecycle transition failed", err)
}
