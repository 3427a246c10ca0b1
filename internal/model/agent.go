package model

import (
	"time"

	"gorm.io/gorm"
)

// AgentType identifies whether an AI agent runs on the platform or on an
// external automation provider
type AgentType string

const (
	AgentInternal AgentType = "internal"
	AgentExternal AgentType = "external"
)

// Agent represents an AI-driven conversation agent owned by a tenant
type Agent struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	AgentType AgentType      `json:"agent_type" gorm:"type:varchar(20);not null;default:'internal'"`
	Prompt    string         `json:"prompt" gorm:"type:text"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
