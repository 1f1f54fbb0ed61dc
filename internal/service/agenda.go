package service

import (
	"context"
	"time"

	"github.com/shearline/booking-core/internal/apperr"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/repository"
)

// AgendaBlock is one block inside an agenda row.
type AgendaBlock struct {
	Sequence int                      `json:"sequence"`
	WorkerID string                   `json:"worker_id"`
	Worker   string                   `json:"worker_name,omitempty"`
	Start    time.Time                `json:"start"`
	End      time.Time                `json:"end"`
	Services []AgendaServiceLine      `json:"services"`
}

// AgendaServiceLine is a snapshotted service line, as it appears in an
// agenda row (never the live Service row, §3).
type AgendaServiceLine struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Duration  int    `json:"duration"`
}

// AgendaRow is one appointment projected for an agenda view. Staff views
// populate RecommendedTotal/PaidTotal/PaymentMethod; the worker day view
// leaves them zero-valued (§4.7: "worker view does not expose totals").
type AgendaRow struct {
	ID               string                   `json:"id"`
	Status           models.AppointmentStatus `json:"status"`
	StartDatetime    time.Time                `json:"start_datetime"`
	EndDatetime      time.Time                `json:"end_datetime"`
	CustomerName     string                   `json:"customer_name"`
	CustomerPhone    string                   `json:"customer_phone,omitempty"`
	Blocks           []AgendaBlock            `json:"blocks"`
	RecommendedTotal int64                    `json:"recommended_total_cents,omitempty"`
	PaidTotal        *int64                   `json:"paid_total_cents,omitempty"`
	PaymentMethod    *models.PaymentMethod    `json:"payment_method,omitempty"`
}

// AgendaStore is the slice of the repository facade C7 needs: the two
// bulk-preloaded agenda reads. Satisfied by *repository.Facade.
type AgendaStore interface {
	ListStaffAgenda(ctx context.Context, dayStart, dayEnd time.Time, filters repository.StaffAgendaFilters) ([]models.Appointment, error)
	ListWorkerAgenda(ctx context.Context, workerID string, dayStart, dayEnd time.Time) ([]models.Appointment, error)
}

// AgendaService implements C7's read-only projections over the repository
// facade's bulk-load primitives, avoiding the N+1 pattern §4.7 calls out.
type AgendaService struct {
	repo         AgendaStore
	shopTimezone string
}

func NewAgendaService(repo AgendaStore, shopTimezone string) *AgendaService {
	return &AgendaService{repo: repo, shopTimezone: shopTimezone}
}

func (s *AgendaService) dayWindow(date time.Time) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(s.shopTimezone)
	if err != nil {
		loc = time.UTC
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour), nil
}

// StaffAgenda implements §4.7's staff day view.
func (s *AgendaService) StaffAgenda(ctx context.Context, date time.Time, filters repository.StaffAgendaFilters) ([]AgendaRow, error) {
	dayStart, dayEnd, _ := s.dayWindow(date)
	appointments, err := s.repo.ListStaffAgenda(ctx, dayStart, dayEnd, filters)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing staff agenda", err)
	}
	return projectAgenda(appointments, true), nil
}

// WorkerAgenda implements §4.7's worker day view: the caller's bound
// worker, totals/payment fields withheld.
func (s *AgendaService) WorkerAgenda(ctx context.Context, workerID string, date time.Time) ([]AgendaRow, error) {
	if workerID == "" {
		return nil, apperr.New(apperr.KindValidation, "worker_id is required")
	}
	dayStart, dayEnd, _ := s.dayWindow(date)
	appointments, err := s.repo.ListWorkerAgenda(ctx, workerID, dayStart, dayEnd)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "listing worker agenda", err)
	}
	return projectAgenda(appointments, false), nil
}

func projectAgenda(appointments []models.Appointment, includeTotals bool) []AgendaRow {
	out := make([]AgendaRow, 0, len(appointments))
	for _, a := range appointments {
		row := AgendaRow{
			ID: a.ID, Status: a.Status, StartDatetime: a.StartDatetime, EndDatetime: a.EndDatetime,
		}
		if a.Customer != nil {
			row.CustomerName = a.Customer.Name
			if a.Customer.Phone != nil {
				row.CustomerPhone = *a.Customer.Phone
			}
		}
		for _, b := range a.Blocks {
			block := AgendaBlock{Sequence: b.Sequence, WorkerID: b.WorkerID, Start: b.StartDatetime, End: b.EndDatetime}
			if b.Worker != nil {
				block.Worker = b.Worker.DisplayName
			}
			for _, line := range b.ServiceLines {
				block.Services = append(block.Services, AgendaServiceLine{
					ServiceID: line.ServiceID, Name: line.NameSnapshot, Duration: line.DurationSnapshot,
				})
			}
			row.Blocks = append(row.Blocks, block)
		}
		if includeTotals {
			row.RecommendedTotal = a.RecommendedTotal
			row.PaidTotal = a.PaidTotal
			row.PaymentMethod = a.PaymentMethod
		}
		out = append(out, row)
	}
	return out
}
