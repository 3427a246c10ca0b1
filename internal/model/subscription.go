package model

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus is the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionOverdue   SubscriptionStatus = "OVERDUE"
	SubscriptionInactive  SubscriptionStatus = "INACTIVE"
)

// PlanType identifies the commercial plan a subscription was purchased under
type PlanType string

const (
	PlanStarter PlanType = "starter"
	PlanPro     PlanType = "pro"
	PlanCustom  PlanType = "custom"
)

// Subscription represents a purchased plan instance tied to a tenant. The
// gateway subscription id is the unique external key the reconciler matches
// inbound billing events against; it stays nil for pre-checkout rows. A
// tenant may hold several ACTIVE/PENDING subscriptions at once and their
// quotas add up.
type Subscription struct {
	ID                    uint               `json:"id" gorm:"primaryKey"`
	TenantID              uint               `json:"tenant_id" gorm:"index;not null"`
	GatewaySubscriptionID *string            `json:"gateway_subscription_id,omitempty" gorm:"type:varchar(100);uniqueIndex"`
	PlanName              string             `json:"plan_name" gorm:"type:varchar(100);not null"`
	PlanType              PlanType           `json:"plan_type" gorm:"type:varchar(20);not null"`
	Quantity              int                `json:"quantity" gorm:"not null;default:1"`
	AllowedInstances      int                `json:"allowed_instances"`
	Status                SubscriptionStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Value                 float64            `json:"value"`
	Price                 float64            `json:"price"`
	Cycle                 string             `json:"cycle" gorm:"type:varchar(20)"`
	StartedAt             *time.Time         `json:"started_at,omitempty"`
	NextDueDate           *time.Time         `json:"next_due_date,omitempty"`
	PaidAt                *time.Time         `json:"paid_at,omitempty"`
	PaymentMethod         string             `json:"payment_method" gorm:"type:varchar(50)"`
	InvoiceURL            string             `json:"invoice_url" gorm:"column:invoice_url;type:text"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	DeletedAt             gorm.DeletedAt     `json:"-" gorm:"index"`
}
