package database

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shearline/booking-core/internal/config"
	"github.com/shearline/booking-core/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect connects to the PostgreSQL database
func Connect(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	// Enable the uuid-ossp extension (primary keys themselves are generated
	// in Go by the models' BeforeCreate hooks)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create uuid extension: %w", err)
	}

	// Auto-migrate models in dependency order: categories/services/workers
	// before the appointment tree that references them.
	err := db.AutoMigrate(
		&models.ServiceCategory{},
		&models.Service{},
		&models.Worker{},
		&models.WeeklyScheduleRule{},
		&models.RecurringBreak{},
		&models.CalendarException{},
		&models.Customer{},
		&models.Appointment{},
		&models.AppointmentBlock{},
		&models.AppointmentServiceLine{},
		&models.AppointmentAudit{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates additional indexes not expressed via struct tags.
func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_blocks_appointment_sequence ON appointment_blocks(appointment_id, sequence)",
		"CREATE INDEX IF NOT EXISTS idx_appointments_customer_status ON appointments(customer_id, status)",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// ConnectRedis connects to Redis
func ConnectRedis(cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return client, nil
}
