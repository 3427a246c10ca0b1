package model

import "time"

// SubscriptionPayment is a gateway-reported charge associated with a local
// subscription. Rows are keyed by the gateway payment id and upserted on
// repeated webhook deliveries, so the table stays append-mostly.
type SubscriptionPayment struct {
	ID                    uint       `json:"id" gorm:"primaryKey"`
	SubscriptionID        uint       `json:"subscription_id" gorm:"index;not null"`
	GatewayPaymentID      string     `json:"gateway_payment_id" gorm:"type:varchar(100);uniqueIndex;not null"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id" gorm:"type:varchar(100);index"`
	Amount                float64    `json:"amount"`
	NetAmount             float64    `json:"net_amount"`
	Status                string     `json:"status" gorm:"type:varchar(30)"`
	DueDate               *time.Time `json:"due_date,omitempty"`
	PaidAt                *time.Time `json:"paid_at,omitempty"`
	PaymentMethod         string     `json:"payment_method" gorm:"type:varchar(50)"`
	InvoiceURL            string     `json:"invoice_url" gorm:"column:invoice_url;type:text"`
	InstallmentNumber     int        `json:"installment_number"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
