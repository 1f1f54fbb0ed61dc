// Package service implements the booking core's domain services: the
// option generator's orchestration (C3 wiring), the reservation service
// (C5), the lifecycle service (C6), and the agenda views (C7). Grounded on
// the teacher's internal/service/service.go shape — one service struct per
// responsibility, constructed with its repository and an EventPublisher —
// generalized from a single BookingService/AvailabilityService pair to the
// full component set spec.md names.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shearline/booking-core/internal/apperr"
	"github.com/shearline/booking-core/internal/calendar"
	"github.com/shearline/booking-core/internal/config"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/options"
	"github.com/shearline/booking-core/pkg/intervals"
	"github.com/shearline/booking-core/pkg/logger"
	"github.com/shearline/booking-core/pkg/optiontoken"
)

// BarberChoice is how the caller wants the BARBER group resolved.
type BarberChoice string

const (
	BarberChoiceSpecific BarberChoice = "SPECIFIC"
	BarberChoiceNearest  BarberChoice = "NEAREST"
)

// TimeWindow optionally narrows the day to a sub-window (HH:MM, HH:MM).
type TimeWindow struct {
	Start string
	End   string
}

// GenerateOptionsRequest is C3's input (§4.3, §6).
type GenerateOptionsRequest struct {
	Date                time.Time
	ServiceIDs          []string
	BarberChoice        BarberChoice
	BarberID            string
	SlotIntervalMinutes int
	Limit               int
	Window              *TimeWindow
}

// ServiceSummary is the public-safe view of a service inside an option
// (§6: "Prices are never emitted publicly").
type ServiceSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Duration     int    `json:"duration"`
	BufferBefore int    `json:"buffer_before"`
	BufferAfter  int    `json:"buffer_after"`
}

// BlockOption is one block inside a returned option.
type BlockOption struct {
	Sequence   int              `json:"sequence"`
	WorkerID   string           `json:"worker_id"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	ServiceIDs []string         `json:"service_ids"`
	Services   []ServiceSummary `json:"services"`
}

// Option is one candidate appointment returned by GenerateOptions.
type Option struct {
	OptionID          string        `json:"option_id"`
	AppointmentStart  time.Time     `json:"appointment_start"`
	AppointmentEnd    time.Time     `json:"appointment_end"`
	GapTotalMinutes   int           `json:"gap_total_minutes"`
	Blocks            []BlockOption `json:"blocks"`
}

// AvailabilityStore is the slice of the repository facade C3 needs: service
// and worker lookups plus the schedule/busy-block reads that feed interval
// subtraction. Satisfied by *repository.Facade; declared here so the
// service depends on an interface rather than the concrete facade (C8).
type AvailabilityStore interface {
	GetServicesByIDs(ctx context.Context, ids []string) ([]models.Service, error)
	GetServiceCategoriesByIDs(ctx context.Context, ids []string) ([]models.ServiceCategory, error)
	GetWorkerByID(ctx context.Context, id string) (*models.Worker, error)
	GetActiveWorkersByRole(ctx context.Context, role models.WorkerRole) ([]models.Worker, error)
	GetWeeklyRules(ctx context.Context, workerIDs []string) ([]models.WeeklyScheduleRule, error)
	GetRecurringBreaks(ctx context.Context, workerIDs []string) ([]models.RecurringBreak, error)
	GetExceptionsForDate(ctx context.Context, workerIDs []string, date time.Time) ([]models.CalendarException, error)
	GetBlocksForWorkersInWindow(ctx context.Context, workerIDs []string, windowStart, windowEnd time.Time) ([]models.AppointmentBlock, error)
}

// AvailabilityService implements C3 (option generation), wiring C1/C2
// (pkg/intervals, internal/calendar) and C4 (pkg/optiontoken).
type AvailabilityService struct {
	repo   AvailabilityStore
	tokens *optiontoken.Manager
	cfg    config.Booking
	logger *logger.Logger
}

func NewAvailabilityService(repo AvailabilityStore, tokens *optiontoken.Manager, cfg config.Booking, log *logger.Logger) *AvailabilityService {
	return &AvailabilityService{repo: repo, tokens: tokens, cfg: cfg, logger: log}
}

// GenerateOptions implements §4.3 end to end: resolve groups, compute free
// intervals per involved worker, enumerate contiguous placements, sign each
// surviving plan into a token.
func (s *AvailabilityService) GenerateOptions(ctx context.Context, req GenerateOptionsRequest) ([]Option, error) {
	if len(req.ServiceIDs) == 0 {
		return nil, apperr.New(apperr.KindValidation, "service_ids is required")
	}

	loc, err := time.LoadLocation(s.cfg.ShopTimezone)
	if err != nil {
		loc = time.UTC
	}

	services, err := s.repo.GetServicesByIDs(ctx, req.ServiceIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching services", err)
	}
	byID := map[string]models.Service{}
	for _, svc := range services {
		byID[svc.ID] = svc
	}

	categoryIDs := make([]string, 0, len(services))
	for _, svc := range services {
		categoryIDs = append(categoryIDs, svc.CategoryID)
	}
	categories, err := s.repo.GetServiceCategoriesByIDs(ctx, categoryIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching service categories", err)
	}
	categoryByID := map[string]models.ServiceCategory{}
	for _, c := range categories {
		categoryByID[c.ID] = c
	}

	// Every FIXED_WORKER service (direct or via its category's default)
	// groups by the resolved worker's OWN role, not a fixed BARBER/NAILS
	// assumption — so the fixed workers need fetching before grouping.
	fixedWorkerIDs := map[string]bool{}
	for _, id := range req.ServiceIDs {
		svc, ok := byID[id]
		if !ok {
			continue
		}
		if id := fixedWorkerCandidate(svc, categoryByID[svc.CategoryID]); id != "" {
			fixedWorkerIDs[id] = true
		}
	}
	fixedWorkers := map[string]models.Worker{}
	for id := range fixedWorkerIDs {
		w, err := s.repo.GetWorkerByID(ctx, id)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "fetching fixed worker", err)
		}
		if w != nil {
			fixedWorkers[id] = *w
		}
	}

	snaps := make([]options.ServiceSnap, 0, len(req.ServiceIDs))
	groupOf := map[string]models.WorkerRole{}
	fixedWorkerOf := map[string]string{}
	for _, id := range req.ServiceIDs {
		svc, ok := byID[id]
		if !ok || !svc.Active {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("invalid or inactive service: %s", id))
		}
		group, fixedWorkerID := resolveGroup(svc, categoryByID[svc.CategoryID], fixedWorkers)
		groupOf[id] = group
		fixedWorkerOf[id] = fixedWorkerID
		snaps = append(snaps, options.ServiceSnap{
			ServiceID:        svc.ID,
			Name:             svc.Name,
			DurationMinutes:  svc.DurationMinutes,
			BufferBefore:     svc.BufferBefore,
			BufferAfter:      svc.BufferAfter,
			PriceCents:       svc.PriceCents,
			EffectiveMinutes: svc.EffectiveMinutes(),
		})
	}

	specs := options.BuildBlockSpecs(snaps, func(snap options.ServiceSnap) (models.WorkerRole, string) {
		return groupOf[snap.ServiceID], fixedWorkerOf[snap.ServiceID]
	})

	var barberCandidates []string
	usesBarber := false
	for _, spec := range specs {
		if spec.Group == models.WorkerRoleBarber {
			usesBarber = true
		}
	}
	if usesBarber {
		switch req.BarberChoice {
		case BarberChoiceSpecific:
			w, err := s.repo.GetWorkerByID(ctx, req.BarberID)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "fetching barber", err)
			}
			if w != nil && w.Active && w.Role == models.WorkerRoleBarber {
				barberCandidates = []string{w.ID}
			}
		case BarberChoiceNearest:
			workers, err := s.repo.GetActiveWorkersByRole(ctx, models.WorkerRoleBarber)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, "fetching barbers", err)
			}
			for _, w := range workers {
				barberCandidates = append(barberCandidates, w.ID)
			}
		default:
			return nil, apperr.New(apperr.KindValidation, "barber_choice must be SPECIFIC or NEAREST")
		}
	}

	involvedWorkers := map[string]bool{}
	for _, id := range barberCandidates {
		involvedWorkers[id] = true
	}
	for _, spec := range specs {
		if spec.WorkerID != "" {
			involvedWorkers[spec.WorkerID] = true
		}
	}
	workerIDs := make([]string, 0, len(involvedWorkers))
	for id := range involvedWorkers {
		workerIDs = append(workerIDs, id)
	}
	if len(workerIDs) == 0 {
		return nil, nil
	}

	dayStart := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)
	window := intervals.Interval{Start: dayStart, End: dayEnd}
	if req.Window != nil {
		ws, err1 := combineHHMM(dayStart, req.Window.Start, loc)
		we, err2 := combineHHMM(dayStart, req.Window.End, loc)
		if err1 == nil && err2 == nil && ws.Before(we) {
			window = intervals.Interval{Start: ws, End: we}
		}
	}

	rules, err := s.repo.GetWeeklyRules(ctx, workerIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching weekly rules", err)
	}
	breaks, err := s.repo.GetRecurringBreaks(ctx, workerIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching recurring breaks", err)
	}
	exceptions, err := s.repo.GetExceptionsForDate(ctx, workerIDs, dayStart)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching calendar exceptions", err)
	}
	busyBlocks, err := s.repo.GetBlocksForWorkersInWindow(ctx, workerIDs, window.Start, window.End)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "fetching existing blocks", err)
	}

	free := options.FreeIntervalsByWorker{}
	for _, workerID := range workerIDs {
		in := calendar.WorkerInput{
			WorkerID:     workerID,
			Date:         dayStart,
			Rules:        filterRules(rules, workerID),
			Breaks:       filterBreaks(breaks, workerID),
			Exceptions:   filterExceptions(exceptions, workerID),
			ExistingBusy: calendar.BusyFromBlocks(filterBlocks(busyBlocks, workerID)),
		}
		free[workerID] = calendar.FreeIntervals(in, window, loc)
	}

	step := time.Duration(req.SlotIntervalMinutes) * time.Minute
	if req.SlotIntervalMinutes <= 0 {
		step = time.Duration(s.cfg.SlotIntervalMinutes) * time.Minute
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.OptionsLimit
	}

	plans := options.Generate(ctx, specs, barberCandidates, free, window, step, limit)

	out := make([]Option, 0, len(plans))
	for _, plan := range plans {
		payload := optiontoken.Payload{AppointmentStart: plan.Start, AppointmentEnd: plan.End}
		blocksOut := make([]BlockOption, 0, len(plan.Blocks))
		for _, b := range plan.Blocks {
			serviceIDs := make([]string, 0, len(b.Services))
			summaries := make([]ServiceSummary, 0, len(b.Services))
			for _, svc := range b.Services {
				serviceIDs = append(serviceIDs, svc.ServiceID)
				summaries = append(summaries, ServiceSummary{
					ID: svc.ServiceID, Name: svc.Name, Duration: svc.DurationMinutes,
					BufferBefore: svc.BufferBefore, BufferAfter: svc.BufferAfter,
				})
			}
			payload.Blocks = append(payload.Blocks, optiontoken.BlockRef{
				Sequence: b.Sequence, WorkerID: b.WorkerID, Start: b.Start, End: b.End, ServiceIDs: serviceIDs,
			})
			blocksOut = append(blocksOut, BlockOption{
				Sequence: b.Sequence, WorkerID: b.WorkerID, Start: b.Start, End: b.End,
				ServiceIDs: serviceIDs, Services: summaries,
			})
		}
		token, err := s.tokens.Sign(payload)
		if err != nil {
			s.logger.Error("failed to sign option token", "error", err)
			continue
		}
		out = append(out, Option{
			OptionID: token, AppointmentStart: plan.Start, AppointmentEnd: plan.End,
			GapTotalMinutes: plan.GapTotalMinutes, Blocks: blocksOut,
		})
	}
	return out, nil
}

// fixedWorkerCandidate returns the worker id a service would resolve to if
// it (or its category) names a fixed worker, without yet knowing that
// worker's role.
func fixedWorkerCandidate(svc models.Service, category models.ServiceCategory) string {
	if svc.AssignmentType == models.AssignmentFixedWorker && svc.FixedWorkerID != nil {
		return *svc.FixedWorkerID
	}
	if category.DefaultFixedWorker != nil {
		return *category.DefaultFixedWorker
	}
	return ""
}

// resolveGroup implements §4.3's group resolution: a service with a
// resolved fixed worker (direct fixed_worker_id or its category's
// default_fixed_worker) groups by that worker's own role; everything else
// groups by BARBER (role-based assignment resolved later against barber
// candidates).
func resolveGroup(svc models.Service, category models.ServiceCategory, fixedWorkers map[string]models.Worker) (models.WorkerRole, string) {
	if id := fixedWorkerCandidate(svc, category); id != "" {
		if w, ok := fixedWorkers[id]; ok {
			return w.Role, w.ID
		}
	}
	return models.WorkerRoleBarber, ""
}

func filterRules(rules []models.WeeklyScheduleRule, workerID string) []models.WeeklyScheduleRule {
	var out []models.WeeklyScheduleRule
	for _, r := range rules {
		if r.WorkerID == workerID {
			out = append(out, r)
		}
	}
	return out
}

func filterBreaks(breaks []models.RecurringBreak, workerID string) []models.RecurringBreak {
	var out []models.RecurringBreak
	for _, b := range breaks {
		if b.WorkerID == workerID {
			out = append(out, b)
		}
	}
	return out
}

func filterExceptions(exceptions []models.CalendarException, workerID string) []models.CalendarException {
	var out []models.CalendarException
	for _, e := range exceptions {
		if e.WorkerID == workerID {
			out = append(out, e)
		}
	}
	return out
}

func filterBlocks(blocks []models.AppointmentBlock, workerID string) []models.AppointmentBlock {
	var out []models.AppointmentBlock
	for _, b := range blocks {
		if b.WorkerID == workerID {
			out = append(out, b)
		}
	}
	return out
}

func combineHHMM(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}
