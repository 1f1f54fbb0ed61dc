package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Appointment is the reservation root. end_datetime is derived from its
// blocks but kept denormalized for range queries (agenda views, C7).
type Appointment struct {
	ID                  string            `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID          string            `gorm:"type:uuid;not null;index:idx_appointments_customer" json:"customer_id"`
	Status              AppointmentStatus `gorm:"type:varchar(20);not null;index:idx_appointments_status_start" json:"status"`
	StartDatetime       time.Time         `gorm:"not null;index:idx_appointments_status_start" json:"start_datetime"`
	EndDatetime         time.Time         `gorm:"not null" json:"end_datetime"`
	CreatedChannel      Channel           `gorm:"type:varchar(20);not null" json:"created_channel"`
	RecommendedSubtotal int64             `gorm:"not null;default:0" json:"recommended_subtotal_cents"`
	RecommendedDiscount int64             `gorm:"not null;default:0" json:"recommended_discount_cents"`
	RecommendedTotal    int64             `gorm:"not null;default:0" json:"recommended_total_cents"`
	PaidTotal           *int64            `json:"paid_total_cents,omitempty"`
	PaymentMethod       *PaymentMethod    `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	PaidAt              *time.Time        `json:"paid_at,omitempty"`
	PaidBy              *string           `gorm:"type:varchar(160)" json:"paid_by,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy         *string           `gorm:"type:varchar(160)" json:"cancelled_by,omitempty"`
	CancelReason        string            `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	Note                string            `gorm:"type:varchar(500)" json:"note,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`

	Customer *Customer         `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Blocks   []AppointmentBlock `gorm:"foreignKey:AppointmentID" json:"blocks,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

// AppointmentBlock is a contiguous segment on one worker's calendar. The
// unique index on (worker_id, start_datetime) is the storage-level
// last-line-of-defense against double-booking (§4.8, §5).
type AppointmentBlock struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	AppointmentID   string    `gorm:"type:uuid;not null;index:idx_blocks_appointment" json:"appointment_id"`
	Sequence        int       `gorm:"not null" json:"sequence"`
	WorkerID        string    `gorm:"type:uuid;not null;uniqueIndex:uniq_worker_start_datetime;index:idx_blocks_worker_range" json:"worker_id"`
	StartDatetime   time.Time `gorm:"not null;uniqueIndex:uniq_worker_start_datetime;index:idx_blocks_worker_range" json:"start_datetime"`
	EndDatetime     time.Time `gorm:"not null;index:idx_blocks_worker_range" json:"end_datetime"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Worker       *Worker                   `gorm:"foreignKey:WorkerID" json:"worker,omitempty"`
	ServiceLines []AppointmentServiceLine  `gorm:"foreignKey:BlockID" json:"service_lines,omitempty"`
}

func (AppointmentBlock) TableName() string {
	return "appointment_blocks"
}

func (b *AppointmentBlock) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return
}

// AppointmentServiceLine freezes the service's billing/timing fields as of
// reservation time. These snapshots, never the live Service row, are what
// downstream billing and audit read (§3 invariant, §8 property 4).
type AppointmentServiceLine struct {
	ID                    string    `gorm:"type:uuid;primaryKey" json:"id"`
	BlockID               string    `gorm:"type:uuid;not null;index:idx_service_lines_block" json:"block_id"`
	ServiceID             string    `gorm:"type:uuid;not null" json:"service_id"`
	NameSnapshot          string    `gorm:"type:varchar(160);not null" json:"name_snapshot"`
	DurationSnapshot      int       `gorm:"not null" json:"duration_minutes_snapshot"`
	BufferBeforeSnapshot  int       `gorm:"not null" json:"buffer_before_minutes_snapshot"`
	BufferAfterSnapshot   int       `gorm:"not null" json:"buffer_after_minutes_snapshot"`
	PriceSnapshotCents    int64     `gorm:"not null" json:"price_snapshot_cents"`
	CreatedAt             time.Time `json:"created_at"`
}

func (AppointmentServiceLine) TableName() string {
	return "appointment_service_lines"
}

func (l *AppointmentServiceLine) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return
}

// AppointmentAudit is an append-only log entry. Rows are never modified or
// deleted (§3); detail carries action-specific structured context.
type AppointmentAudit struct {
	ID            string                     `gorm:"type:uuid;primaryKey" json:"id"`
	AppointmentID string                     `gorm:"type:uuid;not null;index:idx_audit_appointment_time" json:"appointment_id"`
	Action        AuditAction                `gorm:"type:varchar(30);not null;index:idx_audit_action_time" json:"action"`
	PerformedBy   string                     `gorm:"type:varchar(160)" json:"performed_by,omitempty"`
	PerformedAt   time.Time                  `gorm:"not null;index:idx_audit_appointment_time;index:idx_audit_action_time" json:"performed_at"`
	Reason        string                     `gorm:"type:varchar(500)" json:"reason,omitempty"`
	Detail        datatypes.JSON             `json:"detail,omitempty"`
}

func (AppointmentAudit) TableName() string {
	return "appointment_audits"
}

func (a *AppointmentAudit) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}
