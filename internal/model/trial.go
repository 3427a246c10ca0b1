package model

import "time"

// TrialStatus is the lifecycle state of a trial
type TrialStatus string

const (
	TrialActive  TrialStatus = "ACTIVE"
	TrialExpired TrialStatus = "EXPIRED"
)

// Trial represents a time-boxed free-access window for a tenant. Trials are
// never deleted; a tenant may accumulate historical rows and only the most
// recently created one is authoritative.
type Trial struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	TenantID  uint        `json:"tenant_id" gorm:"index;not null"`
	StartedAt time.Time   `json:"started_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Status    TrialStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
