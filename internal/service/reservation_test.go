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

// MockEventPublisher records every event published during a test so
// assertions can check the right subject fired, without a live NATS
// connection.
type MockEventPublisher struct {
	Published []struct {
		Subject string
		Data    interface{}
	}
}

func (m *MockEventPublisher) Publish(subject string, data interface{}) {
	m.Published = append(m.Published, struct {
		Subject string
		Data    interface{}
	}{Subject: subject, Data: data})
}

func (m *MockEventPublisher) Reset() {
	m.Published = nil
}

func testDSN() string {
	return config.NewTestConfig().GetDatabaseURL()
}

type ReservationServiceTestSuite struct {
	suite.Suite
	DB          *gorm.DB
	Repo        *repository.Facade
	Tokens      *optiontoken.Manager
	Publisher   *MockEventPublisher
	Reservation *service.ReservationService
	Logger      *logger.Logger
}

func (s *ReservationServiceTestSuite) SetupSuite() {
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
	s.Reservation = service.NewReservationService(s.Repo, s.Tokens, nil, s.Publisher, s.Logger)
}

func (s *ReservationServiceTestSuite) TearDownSuite() {
	if s.DB == nil {
		return
	}
	sqlDB, _ := s.DB.DB()
	sqlDB.Close()
}

func (s *ReservationServiceTestSuite) SetupTest() {
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

func (s *ReservationServiceTestSuite) seedBarberAndService() (worker models.Worker, svc models.Service) {
	worker = models.Worker{Role: models.WorkerRoleBarber, DisplayName: "Alex", Active: true}
	require.NoError(s.T(), s.DB.Create(&worker).Error)

	category := models.ServiceCategory{Name: "Haircuts", Active: true}
	require.NoError(s.T(), s.DB.Create(&category).Error)

	svc = models.Service{
		CategoryID: category.ID, Name: "Haircut", DurationMinutes: 30, PriceCents: 2500, Active: true,
		AssignmentType: models.AssignmentRoleBased,
	}
	require.NoError(s.T(), s.DB.Create(&svc).Error)
	return worker, svc
}

func (s *ReservationServiceTestSuite) signOption(worker models.Worker, svc models.Service, start time.Time) string {
	end := start.Add(30 * time.Minute)
	token, err := s.Tokens.Sign(optiontoken.Payload{
		AppointmentStart: start,
		AppointmentEnd:   end,
		Blocks: []optiontoken.BlockRef{
			{Sequence: 1, WorkerID: worker.ID, Start: start, End: end, ServiceIDs: []string{svc.ID}},
		},
	})
	require.NoError(s.T(), err)
	return token
}

func (s *ReservationServiceTestSuite) TestReserve_CasualCustomer_Success() {
	t := s.T()
	worker, svc := s.seedBarberAndService()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	token := s.signOption(worker, svc, start)

	summary, err := s.Reservation.Reserve(context.Background(), models.RolePublic, token, service.CustomerInput{
		CustomerType: models.CustomerTypeCasual, Name: "Jamie Doe",
	})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, models.AppointmentStatusReserved, summary.Status)
	assert.Equal(t, svc.PriceCents, summary.RecommendedTotal)

	require.Len(t, s.Publisher.Published, 1)
	assert.Equal(t, "appointment.reserved", s.Publisher.Published[0].Subject)

	var blockCount int64
	s.DB.Model(&models.AppointmentBlock{}).Where("appointment_id = ?", summary.ID).Count(&blockCount)
	assert.Equal(t, int64(1), blockCount)
}

func (s *ReservationServiceTestSuite) TestReserve_FrequentCustomerNotRegistered_Refused() {
	t := s.T()
	worker, svc := s.seedBarberAndService()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	token := s.signOption(worker, svc, start)

	birthDate := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Reservation.Reserve(context.Background(), models.RolePublic, token, service.CustomerInput{
		CustomerType: models.CustomerTypeFrequent, Name: "Jamie Doe", Phone: "+10000000000", BirthDate: &birthDate,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindFrequentNotRegistered, apperr.KindOf(err))
}

func (s *ReservationServiceTestSuite) TestReserve_FrequentCustomerRegistered_Success() {
	t := s.T()
	worker, svc := s.seedBarberAndService()
	birthDate := time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC)
	phone := "+15550000001"
	existing := models.Customer{Type: models.CustomerTypeFrequent, Name: "Morgan", Phone: &phone, BirthDate: &birthDate}
	require.NoError(t, s.DB.Create(&existing).Error)

	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	token := s.signOption(worker, svc, start)

	summary, err := s.Reservation.Reserve(context.Background(), models.RolePublic, token, service.CustomerInput{
		CustomerType: models.CustomerTypeFrequent, Name: "Morgan", Phone: phone, BirthDate: &birthDate,
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, summary.CustomerID)
}

func (s *ReservationServiceTestSuite) TestReserve_DoubleBooking_Conflict() {
	t := s.T()
	worker, svc := s.seedBarberAndService()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)

	firstToken := s.signOption(worker, svc, start)
	_, err := s.Reservation.Reserve(context.Background(), models.RolePublic, firstToken, service.CustomerInput{
		CustomerType: models.CustomerTypeCasual, Name: "First Customer",
	})
	require.NoError(t, err)

	secondToken := s.signOption(worker, svc, start)
	_, err = s.Reservation.Reserve(context.Background(), models.RolePublic, secondToken, service.CustomerInput{
		CustomerType: models.CustomerTypeCasual, Name: "Second Customer",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func (s *ReservationServiceTestSuite) TestReserve_InvalidToken_OptionInvalid() {
	t := s.T()
	_, err := s.Reservation.Reserve(context.Background(), models.RolePublic, "not-a-valid-token", service.CustomerInput{
		CustomerType: models.CustomerTypeCasual, Name: "Jamie Doe",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindOptionInvalid, apperr.KindOf(err))
}

func (s *ReservationServiceTestSuite) TestReserve_InactiveService_Validation() {
	t := s.T()
	worker, svc := s.seedBarberAndService()
	require.NoError(t, s.DB.Model(&svc).Update("active", false).Error)

	start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	token := s.signOption(worker, svc, start)

	_, err := s.Reservation.Reserve(context.Background(), models.RolePublic, token, service.CustomerInput{
		CustomerType: models.CustomerTypeCasual, Name: "Jamie Doe",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestReservationServiceSuite(t *testing.T) {
	suite.Run(t, new(ReservationServiceTestSuite))
}
