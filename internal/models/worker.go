package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Worker is a service provider. A worker is never hard-deleted once it owns
// blocks; deactivation is done via Active=false.
type Worker struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Role        WorkerRole `gorm:"type:varchar(20);not null;index:idx_workers_role_active" json:"role"`
	DisplayName string     `gorm:"type:varchar(160);not null" json:"display_name"`
	Active      bool       `gorm:"not null;default:true;index:idx_workers_role_active" json:"active"`
	PrincipalID *string    `gorm:"type:varchar(160);uniqueIndex:idx_workers_principal" json:"principal_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Worker) TableName() string {
	return "workers"
}

func (w *Worker) BeforeCreate(tx *gorm.DB) (err error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return
}

// WeeklyScheduleRule is a worker's recurring working window for one
// day-of-week. At most one active rule per (worker, day_of_week).
type WeeklyScheduleRule struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	WorkerID   string    `gorm:"type:uuid;not null;index:idx_weekly_rules_worker_day" json:"worker_id"`
	DayOfWeek  int       `gorm:"not null;index:idx_weekly_rules_worker_day" json:"day_of_week"`
	StartTime  string    `gorm:"type:varchar(5);not null" json:"start_time"`
	EndTime    string    `gorm:"type:varchar(5);not null" json:"end_time"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (WeeklyScheduleRule) TableName() string {
	return "weekly_schedule_rules"
}

func (r *WeeklyScheduleRule) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// RecurringBreak is a repeating daily break subtracted from a worker's
// weekly rule before exceptions are applied.
type RecurringBreak struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	WorkerID  string    `gorm:"type:uuid;not null;index:idx_breaks_worker_day" json:"worker_id"`
	DayOfWeek int       `gorm:"not null;index:idx_breaks_worker_day" json:"day_of_week"`
	StartTime string    `gorm:"type:varchar(5);not null" json:"start_time"`
	EndTime   string    `gorm:"type:varchar(5);not null" json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RecurringBreak) TableName() string {
	return "recurring_breaks"
}

func (b *RecurringBreak) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return
}

// CalendarException is a one-off, dated override of a worker's calendar.
// TIME_OFF with no times zeroes the whole day; EXTRA_WORKING requires both.
type CalendarException struct {
	ID        string        `gorm:"type:uuid;primaryKey" json:"id"`
	WorkerID  string        `gorm:"type:uuid;not null;index:idx_exceptions_worker_date" json:"worker_id"`
	Date      time.Time     `gorm:"type:date;not null;index:idx_exceptions_worker_date" json:"date"`
	Type      ExceptionType `gorm:"type:varchar(20);not null" json:"type"`
	StartTime *string       `gorm:"type:varchar(5)" json:"start_time,omitempty"`
	EndTime   *string       `gorm:"type:varchar(5)" json:"end_time,omitempty"`
	Note      string        `gorm:"type:varchar(255)" json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (CalendarException) TableName() string {
	return "calendar_exceptions"
}

func (e *CalendarException) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return
}
