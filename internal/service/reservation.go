package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shearline/booking-core/internal/apperr"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/pkg/events"
	"github.com/shearline/booking-core/pkg/logger"
	"github.com/shearline/booking-core/pkg/optiontoken"
	"gorm.io/gorm"
)

// CustomerInput is the customer half of a Reserve request (§4.5 step 2).
type CustomerInput struct {
	CustomerType models.CustomerType
	Name         string
	Phone        string
	BirthDate    *time.Time
}

// AppointmentSummary is the public-safe view of a freshly created or
// mutated appointment.
type AppointmentSummary struct {
	ID               string                   `json:"id"`
	Status           models.AppointmentStatus `json:"status"`
	StartDatetime    time.Time                `json:"start_datetime"`
	EndDatetime      time.Time                `json:"end_datetime"`
	CustomerID       string                   `json:"customer_id"`
	RecommendedTotal int64                    `json:"recommended_total_cents"`
}

// ReservationStore is the slice of the repository facade C5 needs: service
// and frequent-customer lookups, the locking + conflict-checked create
// transaction, and best-effort audit. Satisfied by *repository.Facade.
type ReservationStore interface {
	GetCustomerByFrequentIdentity(ctx context.Context, phone string, birthDate time.Time) (*models.Customer, error)
	GetServicesByIDs(ctx context.Context, ids []string) ([]models.Service, error)
	WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	LockWorkers(tx *gorm.DB, workerIDs []string) ([]models.Worker, error)
	FindIntersectingBlocks(tx *gorm.DB, workerID string, start, end time.Time, excludeAppointmentID string) ([]models.AppointmentBlock, error)
	CreateCustomer(tx *gorm.DB, c *models.Customer) error
	UpdateCustomerName(tx *gorm.DB, customerID, name string) error
	CreateAppointmentTree(tx *gorm.DB, appt *models.Appointment, blocks []*models.AppointmentBlock, linesByBlockIndex map[int][]*models.AppointmentServiceLine) error
	CreateAuditInTx(tx *gorm.DB, audit *models.AppointmentAudit) error
}

// ReservationService implements C5: verify token, validate customer,
// lock + revalidate + create under a serializable transaction, writing the
// CREATE audit row inside that same transaction (a failed audit insert is
// logged, not returned, and is not retried after commit). Grounded on the
// teacher's BookingService.
// CreateBooking transaction shape, generalized to the multi-block,
// snapshot-freezing schema spec.md describes.
type ReservationService struct {
	repo      ReservationStore
	tokens    *optiontoken.Manager
	redis     *redis.Client
	publisher events.Publisher
	logger    *logger.Logger
}

func NewReservationService(repo ReservationStore, tokens *optiontoken.Manager, redisClient *redis.Client, publisher events.Publisher, log *logger.Logger) *ReservationService {
	return &ReservationService{repo: repo, tokens: tokens, redis: redisClient, publisher: publisher, logger: log}
}

// Reserve implements §4.5 end to end.
func (s *ReservationService) Reserve(ctx context.Context, principal models.Role, optionID string, customer CustomerInput) (*AppointmentSummary, error) {
	payload, err := s.tokens.Verify(optionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOptionInvalid, "option token invalid", err)
	}
	if len(payload.Blocks) == 0 {
		return nil, apperr.New(apperr.KindOptionInvalid, "option carries no blocks")
	}

	var customerRow *models.Customer
	switch customer.CustomerType {
	case models.CustomerTypeFrequent:
		if customer.Phone == "" || customer.BirthDate == nil {
			return nil, apperr.New(apperr.KindValidation, "frequent customers require phone and birth_date")
		}
		existing, err := s.repo.GetCustomerByFrequentIdentity(ctx, customer.Phone, *customer.BirthDate)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "looking up frequent customer", err)
		}
		if existing == nil {
			return nil, apperr.New(apperr.KindFrequentNotRegistered, "no matching frequent customer on file")
		}
		customerRow = existing
	case models.CustomerTypeCasual:
		if customer.Name == "" {
			return nil, apperr.New(apperr.KindValidation, "casual customers require a name")
		}
		customerRow = &models.Customer{Type: models.CustomerTypeCasual, Name: customer.Name}
	default:
		return nil, apperr.New(apperr.KindValidation, "customer_type must be CASUAL or FREQUENT")
	}

	channel := models.ChannelClient
	if principal.IsStaffOrAdmin() {
		channel = models.ChannelStaff
	}

	serviceIDs := map[string]bool{}
	for _, b := range payload.Blocks {
		for _, id := range b.ServiceIDs {
			serviceIDs[id] = true
		}
	}
	idList := make([]string, 0, len(serviceIDs))
	for id := range serviceIDs {
		idList = append(idList, id)
	}
	services, err := s.repo.GetServicesByIDs(ctx, idList)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching services", err)
	}
	serviceByID := map[string]models.Service{}
	for _, svc := range services {
		serviceByID[svc.ID] = svc
	}
	for _, id := range idList {
		svc, ok := serviceByID[id]
		if !ok || !svc.Active {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("service %s is no longer available", id))
		}
	}

	workerIDs := map[string]bool{}
	for _, b := range payload.Blocks {
		workerIDs[b.WorkerID] = true
	}
	workerIDList := make([]string, 0, len(workerIDs))
	for id := range workerIDs {
		workerIDList = append(workerIDList, id)
	}

	var appt *models.Appointment

	err = s.repo.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, lockErr := s.repo.LockWorkers(tx, workerIDList); lockErr != nil {
			return lockErr
		}

		for _, b := range payload.Blocks {
			intersecting, findErr := s.repo.FindIntersectingBlocks(tx, b.WorkerID, b.Start, b.End, "")
			if findErr != nil {
				return findErr
			}
			if len(intersecting) > 0 {
				return apperr.New(apperr.KindConflict, "requested slot is no longer available")
			}
		}

		if customer.CustomerType == models.CustomerTypeCasual {
			if createErr := s.repo.CreateCustomer(tx, customerRow); createErr != nil {
				return createErr
			}
		} else if customer.Name != "" && customer.Name != customerRow.Name {
			if updErr := s.repo.UpdateCustomerName(tx, customerRow.ID, customer.Name); updErr != nil {
				return updErr
			}
			customerRow.Name = customer.Name
		}

		a := &models.Appointment{
			CustomerID:     customerRow.ID,
			Status:         models.AppointmentStatusReserved,
			StartDatetime:  payload.AppointmentStart,
			EndDatetime:    payload.AppointmentEnd,
			CreatedChannel: channel,
		}

		blocks := make([]*models.AppointmentBlock, 0, len(payload.Blocks))
		linesByIndex := map[int][]*models.AppointmentServiceLine{}
		var total int64
		for i, b := range payload.Blocks {
			blocks = append(blocks, &models.AppointmentBlock{
				Sequence:      b.Sequence,
				WorkerID:      b.WorkerID,
				StartDatetime: b.Start,
				EndDatetime:   b.End,
			})
			for _, id := range b.ServiceIDs {
				svc := serviceByID[id]
				linesByIndex[i] = append(linesByIndex[i], &models.AppointmentServiceLine{
					ServiceID:            svc.ID,
					NameSnapshot:         svc.Name,
					DurationSnapshot:     svc.DurationMinutes,
					BufferBeforeSnapshot: svc.BufferBefore,
					BufferAfterSnapshot:  svc.BufferAfter,
					PriceSnapshotCents:   svc.PriceCents,
				})
				total += svc.PriceCents
			}
		}
		a.RecommendedSubtotal = total
		a.RecommendedTotal = total
		a.RecommendedDiscount = 0

		if createErr := s.repo.CreateAppointmentTree(tx, a, blocks, linesByIndex); createErr != nil {
			if repository.IsConflict(createErr) {
				return apperr.New(apperr.KindConflict, "requested slot is no longer available")
			}
			return createErr
		}

		auditDetail := map[string]interface{}{"option_id": optionID, "channel": channel}
		audit := &models.AppointmentAudit{
			AppointmentID: a.ID,
			Action:        models.AuditActionCreate,
			PerformedBy:   string(principal),
			PerformedAt:   time.Now(),
			Detail:        repository.NewAuditDetail(auditDetail),
		}
		if auditErr := s.repo.CreateAuditInTx(tx, audit); auditErr != nil {
			s.logger.Warn("failed to record creation audit inline, will not retry", "error", auditErr)
		}

		appt = a
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.publisher.Publish(events.SubjectAppointmentReserved, map[string]interface{}{
		"appointment_id": appt.ID,
		"start_datetime": appt.StartDatetime,
	})

	return toSummary(appt), nil
}
