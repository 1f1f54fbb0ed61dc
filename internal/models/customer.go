package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is the identity attached to an appointment. CASUAL customers are
// created on the fly by a public reservation; FREQUENT customers must
// already exist and are looked up by (phone, birth_date) (§4.5 step 2).
type Customer struct {
	ID        string       `gorm:"type:uuid;primaryKey" json:"id"`
	Type      CustomerType `gorm:"type:varchar(20);not null" json:"type"`
	Name      string       `gorm:"type:varchar(160);not null" json:"name"`
	Phone     *string      `gorm:"type:varchar(32);uniqueIndex:idx_customers_phone" json:"phone,omitempty"`
	BirthDate *time.Time   `gorm:"type:date" json:"birth_date,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}
