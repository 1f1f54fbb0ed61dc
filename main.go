package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shearline/booking-core/internal/config"
	"github.com/shearline/booking-core/internal/database"
	"github.com/shearline/booking-core/internal/handlers"
	"github.com/shearline/booking-core/internal/middleware"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/internal/service"
	"github.com/shearline/booking-core/internal/subscribers"
	"github.com/shearline/booking-core/pkg/events"
	"github.com/shearline/booking-core/pkg/logger"
	"github.com/shearline/booking-core/pkg/optiontoken"
	"github.com/shearline/booking-core/pkg/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		appLogger.Fatal("failed to connect to database", "error", err)
	}

	if err := database.Migrate(db); err != nil {
		appLogger.Fatal("failed to run database migrations", "error", err)
	}

	var redisClient *redis.Client
	redisClient, err = database.ConnectRedis(cfg.Redis)
	if err != nil {
		if cfg.Environment == "development" {
			appLogger.Warn("failed to connect to redis, continuing without it", "error", err)
			redisClient = nil
		} else {
			appLogger.Fatal("failed to connect to redis", "error", err)
		}
	}

	var natsConn *nats.Conn
	var eventPublisher events.Publisher

	natsConn, err = events.Connect(cfg.NATS)
	if err != nil {
		if cfg.Environment == "development" {
			appLogger.Warn("failed to connect to NATS, continuing without it", "error", err)
			natsConn = nil
			eventPublisher = events.NewNullPublisher(appLogger)
		} else {
			appLogger.Fatal("failed to connect to NATS", "error", err)
		}
	} else {
		defer natsConn.Close()
		eventPublisher = events.NewPublisher(natsConn, appLogger)
	}

	repo := repository.New(db)
	tokens := optiontoken.NewManager(cfg.Booking.OptionTokenSecret, cfg.Booking.OptionTokenTTL, "booking-core")

	availabilityService := service.NewAvailabilityService(repo, tokens, cfg.Booking, appLogger)
	reservationService := service.NewReservationService(repo, tokens, redisClient, eventPublisher, appLogger)
	lifecycleService := service.NewLifecycleService(repo, tokens, eventPublisher, cfg.Booking, appLogger)
	agendaService := service.NewAgendaService(repo, cfg.Booking.ShopTimezone)

	cronScheduler := scheduler.New(repo, redisClient, appLogger)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	availabilityHandler := handlers.NewAvailabilityHandler(availabilityService, appLogger)
	appointmentHandler := handlers.NewAppointmentHandler(reservationService, lifecycleService, redisClient, 10*time.Minute, appLogger)
	agendaHandler := handlers.NewAgendaHandler(agendaService, appLogger)
	healthHandler := handlers.NewHealthHandler(db, redisClient, natsConn, appLogger)

	if natsConn != nil {
		eventSubscriber := events.NewSubscriber(natsConn, appLogger)
		catalogHandlers := subscribers.NewCatalogEventHandlers(db, appLogger)
		staffingHandlers := subscribers.NewStaffingEventHandlers(db, appLogger)

		if err := setupEventSubscribers(eventSubscriber, catalogHandlers, staffingHandlers); err != nil {
			appLogger.Fatal("failed to set up event subscribers", "error", err)
		}
	} else {
		appLogger.Warn("skipping NATS event subscribers (no NATS connection)")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authMiddleware := middleware.NewAuthMiddleware(appLogger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(appLogger))
	router.Use(middleware.DefaultCORS())
	router.Use(authMiddleware.ResolvePrincipal())

	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/health/live", healthHandler.Live)

	router.POST("/availability/options", availabilityHandler.GenerateOptions)

	public := router.Group("/public")
	{
		public.POST("/appointments", appointmentHandler.CreatePublicAppointment)
	}

	staff := router.Group("/")
	staff.Use(authMiddleware.RequireStaffOrAdmin())
	{
		staff.POST("/appointments/:id/cancel", appointmentHandler.Cancel)
		staff.POST("/appointments/:id/attend", appointmentHandler.MarkAttended)
		staff.POST("/appointments/:id/no-show", appointmentHandler.MarkNoShow)
		staff.POST("/appointments/:id/payment", appointmentHandler.RegisterPayment)
		staff.GET("/appointments/:id/payment-summary", appointmentHandler.PaymentSummary)
		staff.POST("/staff/appointments/:id/reschedule", appointmentHandler.Reschedule)
		staff.POST("/staff/appointments/:id/inline-edit", appointmentHandler.InlineEdit)
		staff.GET("/agenda/staff", agendaHandler.StaffAgenda)
	}

	worker := router.Group("/")
	worker.Use(authMiddleware.RequireWorker())
	{
		worker.GET("/agenda/my", agendaHandler.MyAgenda)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("starting booking core", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down booking core...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Fatal("server forced to shutdown", "error", err)
	}

	appLogger.Info("booking core stopped")
}

func setupEventSubscribers(
	subscriber *events.Subscriber,
	catalogHandlers *subscribers.CatalogEventHandlers,
	staffingHandlers *subscribers.StaffingEventHandlers,
) error {
	if err := subscriber.Subscribe(events.SubjectCatalogServiceUpdated, catalogHandlers.HandleServiceUpdated); err != nil {
		return fmt.Errorf("subscribing to %s: %w", events.SubjectCatalogServiceUpdated, err)
	}
	if err := subscriber.Subscribe(events.SubjectStaffingWorkerUpdated, staffingHandlers.HandleWorkerUpdated); err != nil {
		return fmt.Errorf("subscribing to %s: %w", events.SubjectStaffingWorkerUpdated, err)
	}
	return nil
}
