package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents a company account. It owns trials, subscriptions,
// WhatsApp instances and agents; the billing customer reference stays nil
// until the first billing interaction.
type Tenant struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	Name              string         `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	BillingCustomerID *string        `json:"billing_customer_id,omitempty" gorm:"type:varchar(100)"`
	Status            string         `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Trials        []Trial        `json:"trials,omitempty" gorm:"foreignKey:TenantID"`
	Subscriptions []Subscription `json:"subscriptions,omitempty" gorm:"foreignKey:TenantID"`
}
