package model

import (
	"time"

	"gorm.io/gorm"
)

// ProviderType identifies which WhatsApp provider backs an instance
type ProviderType string

const (
	ProviderNative   ProviderType = "nativo"
	ProviderExternal ProviderType = "externo"
)

// WhatsAppInstance represents a provisioned WhatsApp connection for a tenant
type WhatsAppInstance struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantID     uint           `json:"tenant_id" gorm:"index;not null"`
	Name         string         `json:"name" gorm:"type:varchar(100);not null"`
	ProviderType ProviderType   `json:"provider_type" gorm:"type:varchar(20);not null;default:'nativo'"`
	Status       string         `json:"status" gorm:"type:varchar(30);not null;default:'disconnected'"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
