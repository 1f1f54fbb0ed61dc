package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shearline/booking-core/internal/apperr"
	"github.com/shearline/booking-core/internal/config"
	"github.com/shearline/booking-core/internal/database"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/internal/service"
	"github.com/shearline/booking-core/pkg/logger"
	"github.com/shearline/booking-core/pkg/optiontoken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type LifecycleServiceTestSuite struct {
	suite.Suite
	DB          *gorm.DB
	Repo        *repository.Facade
	Tokens      *optiontoken.Manager
	Publisher   *MockEventPublisher
	Lifecycle   *service.LifecycleService
	Reservation *service.ReservationService
	Logger      *logger.Logger
}

func (s *LifecycleServiceTestSuite) SetupSuite() {
	s.Logger = logger.New("debug")
	db, err := gorm.Open(postgres.Open(testDSN()), &gorm.Config{})
	if err != nil {
		s.T().Skipf("skipping, no test database available: %v", err)
		return
	}
	s.DB = db
	require.NoError(s.T(), database.Migrate(s.DB))

	s.Repo = repository.New(s.DB)
	s.Tokens = optiontoken.NewManager("test-secret", 5*time.Minute, "booking-core-test")
	s.Publisher = &MockEventPublisher{}
	cfg := config.Booking{CancelWindowMinutes: 60}
	s.Lifecycle = service.NewLifecycleService(s.Repo, s.Tokens, s.Publisher, cfg, s.Logger)
	s.Reservation = service.NewReservationService(s.Repo, s.Tokens, nil, s.Publisher, s.Logger)
}

func (s *LifecycleServiceTestSuite) TearDownSuite() {
	if s.DB == nil {
		return
	}
	sqlDB, _ := s.DB.DB()
	sqlDB.Close()
}

func (s *LifecycleServiceTestSuite) SetupTest() {
	if s.DB == nil {
		s.T().Skip()
	}
	s.Publisher.Reset()
	s.DB.Exec("DELETE FROM appointment_audits")
	s.DB.Exec("DELETE FROM appointment_service_lines")
	s.DB.Exec("DELETE FROM appointment_blocks")
	s.DB.Exec("DELETE FROM appointments")
	s.DB.Exec("DELETE FROM customers")
	s.DB.Exec("DELETE FROM services")
	s.DB.Exec("DELETE FROM service_categories")
	s.DB.Exec("DELETE FROM workers")
}

func (s *LifecycleServiceTestSuite) seedReservedAppointment(start time.Time) *service.AppointmentSummary {
	t := s.T()
	worker := models.Worker{Role: models.WorkerRoleBarber, DisplayName: "Alex", Active: true}
	require.NoError(t, s.DB.Create(&worker).Error)
	category := models.ServiceCategory{Name: "Haircuts " + worker.ID, Active: true}
	require.NoError(t, s.DB.Create(&category).Error)
	svc := models.Service{CategoryID: category.ID, Name: "Haircut", DurationMinutes: 30, PriceCents: 2500, Active: true, AssignmentType: models.AssignmentRoleBased}
	require.NoError(t, s.DB.Create(&svc).Error)

	end := start.Add(30 * time.Minute)
	token, err := s.Tokens.Sign(optiontoken.Payload{
		AppointmentStart: start, AppointmentEnd: end,
		Blocks: []optiontoken.BlockRef{{Sequence: 1, WorkerID: worker.ID, Start: start, End: end, ServiceIDs: []string{svc.ID}}},
	})
	require.NoError(t, err)

	summary, err := s.Reservation.Reserve(context.Background(), models.RolePublic, token, service.CustomerInput{
		CustomerType: models.CustomerTypeCasual, Name: "Jamie Doe",
	})
	require.NoError(t, err)
	s.Publisher.Reset()
	return summary
}

func (s *LifecycleServiceTestSuite) TestCancel_WithinWindow_Succeeds() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	result, err := s.Lifecycle.Cancel(context.Background(), models.RolePublic, appt.ID, "customer request", false)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusCancelled, result.Status)

	var blockCount int64
	s.DB.Model(&models.AppointmentBlock{}).Where("appointment_id = ?", appt.ID).Count(&blockCount)
	assert.Equal(t, int64(0), blockCount, "cancel must delete blocks so the worker's calendar frees up")

	require.Len(t, s.Publisher.Published, 1)
	assert.Equal(t, "appointment.cancelled", s.Publisher.Published[0].Subject)
}

func (s *LifecycleServiceTestSuite) TestCancel_OutsideWindowWithoutForce_PolicyDenied() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(10 * time.Minute).Truncate(time.Minute))

	_, err := s.Lifecycle.Cancel(context.Background(), models.RolePublic, appt.ID, "too late", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPolicyDenied, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestCancel_OutsideWindowWithForce_Succeeds() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(10 * time.Minute).Truncate(time.Minute))

	result, err := s.Lifecycle.Cancel(context.Background(), models.RoleStaff, appt.ID, "staff override", true)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusCancelled, result.Status)
}

func (s *LifecycleServiceTestSuite) TestCancel_StaffBypassesWindowWithoutForce() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(10 * time.Minute).Truncate(time.Minute))

	result, err := s.Lifecycle.Cancel(context.Background(), models.RoleStaff, appt.ID, "staff decision", false)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusCancelled, result.Status)
}

func (s *LifecycleServiceTestSuite) TestCancel_AlreadyCancelled_Idempotent() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.Cancel(context.Background(), models.RolePublic, appt.ID, "first cancel", false)
	require.NoError(t, err)
	s.Publisher.Reset()

	result, err := s.Lifecycle.Cancel(context.Background(), models.RolePublic, appt.ID, "second cancel", false)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusCancelled, result.Status)
	assert.Empty(t, s.Publisher.Published, "re-cancelling an already-cancelled appointment must not re-publish")
}

func (s *LifecycleServiceTestSuite) TestMarkAttended_FromReserved_Succeeds() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	result, err := s.Lifecycle.MarkAttended(context.Background(), models.RoleStaff, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusAttended, result.Status)

	var blockCount int64
	s.DB.Model(&models.AppointmentBlock{}).Where("appointment_id = ?", appt.ID).Count(&blockCount)
	assert.Equal(t, int64(1), blockCount, "attended appointments keep their blocks occupying the calendar")
}

func (s *LifecycleServiceTestSuite) TestMarkAttended_NonStaff_Unauthorized() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.MarkAttended(context.Background(), models.RolePublic, appt.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestMarkNoShow_FreesBusyBlocksForFutureAvailability() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	result, err := s.Lifecycle.MarkNoShow(context.Background(), models.RoleStaff, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusNoShow, result.Status)

	var blockCount int64
	s.DB.Model(&models.AppointmentBlock{}).Where("appointment_id = ?", appt.ID).Count(&blockCount)
	assert.Equal(t, int64(1), blockCount, "no-show leaves blocks in place; they stop counting as busy via the status filter at query time")

	var appointmentIDs []string
	s.DB.Table("appointment_blocks").
		Joins("JOIN appointments ON appointments.id = appointment_blocks.appointment_id").
		Where("appointments.status IN ?", []models.AppointmentStatus{models.AppointmentStatusReserved, models.AppointmentStatusAttended}).
		Pluck("appointment_blocks.appointment_id", &appointmentIDs)
	assert.NotContains(t, appointmentIDs, appt.ID, "a NO_SHOW appointment's blocks must not appear as busy to availability queries")
}

func (s *LifecycleServiceTestSuite) TestMarkAttended_AlreadyTerminal_InvalidState() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.MarkAttended(context.Background(), models.RoleStaff, appt.ID)
	require.NoError(t, err)

	_, err = s.Lifecycle.MarkNoShow(context.Background(), models.RoleStaff, appt.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestRegisterPayment_AnyStatus_Succeeds() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.Cancel(context.Background(), models.RolePublic, appt.ID, "no longer needed", false)
	require.NoError(t, err)

	result, err := s.Lifecycle.RegisterPayment(context.Background(), models.RoleStaff, appt.ID, 2500, "cash")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusCancelled, result.Status, "registering payment does not change lifecycle status")
}

func (s *LifecycleServiceTestSuite) TestRegisterPayment_InvalidMethod_Validation() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.RegisterPayment(context.Background(), models.RoleStaff, appt.ID, 2500, "bitcoin")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestGetPaymentSummary_ReflectsOutstandingBalance() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.RegisterPayment(context.Background(), models.RoleStaff, appt.ID, 1000, "cash")
	require.NoError(t, err)

	summary, err := s.Lifecycle.GetPaymentSummary(context.Background(), models.RoleStaff, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.PaidTotal)
	assert.Equal(t, int64(1000), *summary.PaidTotal)
	assert.Equal(t, summary.RecommendedTotal-1000, summary.Outstanding)
}

func (s *LifecycleServiceTestSuite) TestGetPaymentSummary_NonStaff_Unauthorized() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.GetPaymentSummary(context.Background(), models.RolePublic, appt.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestReschedule_SameWorkerDifferentTime_Succeeds() {
	t := s.T()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	appt := s.seedReservedAppointment(start)

	var blocks []models.AppointmentBlock
	s.DB.Where("appointment_id = ?", appt.ID).Find(&blocks)
	require.Len(t, blocks, 1)

	newStart := start.Add(2 * time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	token, err := s.Tokens.Sign(optiontoken.Payload{
		AppointmentStart: newStart, AppointmentEnd: newEnd,
		Blocks: []optiontoken.BlockRef{{Sequence: 1, WorkerID: blocks[0].WorkerID, Start: newStart, End: newEnd}},
	})
	require.NoError(t, err)

	result, err := s.Lifecycle.Reschedule(context.Background(), models.RoleStaff, appt.ID, token, "customer asked to move")
	require.NoError(t, err)
	assert.True(t, newStart.Equal(result.StartDatetime))
}

func (s *LifecycleServiceTestSuite) TestReschedule_DifferentWorkerSet_Rejected() {
	t := s.T()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	appt := s.seedReservedAppointment(start)

	otherWorker := models.Worker{Role: models.WorkerRoleBarber, DisplayName: "Jordan", Active: true}
	require.NoError(t, s.DB.Create(&otherWorker).Error)

	newStart := start.Add(2 * time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	token, err := s.Tokens.Sign(optiontoken.Payload{
		AppointmentStart: newStart, AppointmentEnd: newEnd,
		Blocks: []optiontoken.BlockRef{{Sequence: 1, WorkerID: otherWorker.ID, Start: newStart, End: newEnd}},
	})
	require.NoError(t, err)

	_, err = s.Lifecycle.Reschedule(context.Background(), models.RoleStaff, appt.ID, token, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestReschedule_NonReservedStatus_Rejected() {
	t := s.T()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	appt := s.seedReservedAppointment(start)

	_, err := s.Lifecycle.MarkAttended(context.Background(), models.RoleStaff, appt.ID)
	require.NoError(t, err)

	var blocks []models.AppointmentBlock
	s.DB.Unscoped().Where("appointment_id = ?", appt.ID).Find(&blocks)
	require.Len(t, blocks, 1)

	newStart := start.Add(2 * time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	token, err := s.Tokens.Sign(optiontoken.Payload{
		AppointmentStart: newStart, AppointmentEnd: newEnd,
		Blocks: []optiontoken.BlockRef{{Sequence: 1, WorkerID: blocks[0].WorkerID, Start: newStart, End: newEnd}},
	})
	require.NoError(t, err)

	_, err = s.Lifecycle.Reschedule(context.Background(), models.RoleStaff, appt.ID, token, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func (s *LifecycleServiceTestSuite) TestInlineEdit_NoteUpdatedWithoutAvailabilityCheck() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	note := "customer requested quieter chair"
	result, err := s.Lifecycle.InlineEdit(context.Background(), models.RoleStaff, appt.ID, service.InlineEditInput{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusReserved, result.Status)

	var reloaded models.Appointment
	require.NoError(t, s.DB.First(&reloaded, "id = ?", appt.ID).Error)
	assert.Equal(t, note, reloaded.Note)
}

func (s *LifecycleServiceTestSuite) TestInlineEdit_CannotLeaveTerminalStatus() {
	t := s.T()
	appt := s.seedReservedAppointment(time.Now().Add(48 * time.Hour).Truncate(time.Minute))

	_, err := s.Lifecycle.Cancel(context.Background(), models.RolePublic, appt.ID, "", false)
	require.NoError(t, err)

	reserved := models.AppointmentStatusReserved
	_, err = s.Lifecycle.InlineEdit(context.Background(), models.RoleStaff, appt.ID, service.InlineEditInput{Status: &reserved})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestLifecycleServiceSuite(t *testing.T) {
	suite.Run(t, new(LifecycleServiceTestSuite))
}
