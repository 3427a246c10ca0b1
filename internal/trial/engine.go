package trial

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrTrialNotFound is returned when a status write targets a missing trial row
var ErrTrialNotFound = errors.New("trial not found")

// Engine owns trial creation, expiry detection and status transition. It
// performs no uniqueness check on creation: callers must consult
// GetTrialStatus first if they want to forbid overlapping active trials.
type Engine struct {
	db          *gorm.DB
	defaultDays int
}

// NewEngine creates a trial engine. defaultDays applies when CreateTrial is
// called without an explicit duration.
func NewEngine(db *gorm.DB, defaultDays int) *Engine {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Engine{db: db, defaultDays: defaultDays}
}

// Status is the projection of a tenant's most recent trial at read time
type Status struct {
	HasActiveTrial bool         `json:"has_active_trial"`
	IsExpired      bool         `json:"is_expired"`
	DaysRemaining  int          `json:"days_remaining"`
	Trial          *model.Trial `json:"trial,omitempty"`
}

// CreateTrial inserts a new ACTIVE trial row for the tenant starting now
func (e *Engine) CreateTrial(tenantID uint, days int) (*model.Trial, error) {
	if days <= 0 {
		days = e.defaultDays
	}

	now := time.Now()
	trial := &model.Trial{
		TenantID:  tenantID,
		StartedAt: now,
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
		Status:    model.TrialActive,
	}

	if err := e.db.Create(trial).Error; err != nil {
		return nil, fmt.Errorf("failed to create trial: %w", err)
	}

	return trial, nil
}

// GetTrialStatus projects the tenant's most recent trial onto a Status. When
// an ACTIVE row is found past its expiry the stored status is moved to
// EXPIRED before returning; the write is best-effort and never changes the
// logical result of the current call.
func (e *Engine) GetTrialStatus(tenantID uint) (*Status, error) {
	var trial model.Trial
	err := e.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		First(&trial).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trial: %w", err)
	}

	now := time.Now()
	isExpired := !now.Before(trial.ExpiresAt)

	if computeStatus(&trial, now) == model.TrialExpired && trial.Status == model.TrialActive {
		// Lazy transition on read; there is no background sweeper.
		if err := e.db.Model(&model.Trial{}).
			Where("id = ?", trial.ID).
			Update("status", model.TrialExpired).Error; err != nil {
			zap.L().Warn("Failed to persist trial expiry",
				zap.Uint("trial_id", trial.ID),
				zap.Uint("tenant_id", tenantID),
				zap.Error(err))
		}
		trial.Status = model.TrialExpired
	}

	return &Status{
		HasActiveTrial: trial.Status == model.TrialActive && !isExpired,
		IsExpired:      isExpired,
		DaysRemaining:  remainingDays(trial.ExpiresAt, now),
		Trial:          &trial,
	}, nil
}

// UpdateTrialStatus writes the trial status directly
func (e *Engine) UpdateTrialStatus(trialID uint, status model.TrialStatus) error {
	result := e.db.Model(&model.Trial{}).
		Where("id = ?", trialID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update trial status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTrialNotFound
	}
	return nil
}

// computeStatus decides the logical status of a trial at the given instant.
// ACTIVE only degrades to EXPIRED, never the reverse.
func computeStatus(trial *model.Trial, now time.Time) model.TrialStatus {
	if !now.Before(trial.ExpiresAt) {
		return model.TrialExpired
	}
	return trial.Status
}

// remainingDays counts whole days until expiry, rounding up and clamping at zero
func remainingDays(expiresAt, now time.Time) int {
	if !now.Before(expiresAt) {
		return 0
	}
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}
