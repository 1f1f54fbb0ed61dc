package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ServiceCategory groups services and optionally supplies a fallback fixed
// worker for services that don't declare one of their own.
type ServiceCategory struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"type:varchar(160);uniqueIndex;not null" json:"name"`
	Active            bool      `gorm:"not null;default:true" json:"active"`
	DefaultFixedWorker *string  `gorm:"type:uuid" json:"default_fixed_worker_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (ServiceCategory) TableName() string {
	return "service_categories"
}

func (c *ServiceCategory) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// Service is a sellable unit of work. EffectiveMinutes is the full amount
// of block time it consumes once buffers are included.
type Service struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID      string         `gorm:"type:uuid;not null;index:idx_services_category_active" json:"category_id"`
	Name            string         `gorm:"type:varchar(160);not null" json:"name"`
	DurationMinutes int            `gorm:"not null" json:"duration_minutes"`
	BufferBefore    int            `gorm:"not null;default:0" json:"buffer_before_minutes"`
	BufferAfter     int            `gorm:"not null;default:0" json:"buffer_after_minutes"`
	PriceCents      int64          `gorm:"not null" json:"price_cents"`
	Active          bool           `gorm:"not null;default:true;index:idx_services_category_active" json:"active"`
	AssignmentType  AssignmentType `gorm:"type:varchar(20);not null" json:"assignment_type"`
	FixedWorkerID   *string        `gorm:"type:uuid" json:"fixed_worker_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Service) TableName() string {
	return "services"
}

func (s *Service) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// EffectiveMinutes is buffer_before + duration + buffer_after (§3, GLOSSARY).
func (s Service) EffectiveMinutes() int {
	return s.BufferBefore + s.DurationMinutes + s.BufferAfter
}
