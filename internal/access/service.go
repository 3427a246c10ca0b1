package access

import (
	"errors"
	"fmt"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/trial"
	"gorm.io/gorm"
)

// Service answers whether a tenant currently has access to gated features.
// A paid ACTIVE/PENDING subscription and an unexpired trial are alternative
// grants; either one suffices. Super-admin bypass is the caller's concern,
// not this service's.
type Service struct {
	db     *gorm.DB
	trials *trial.Engine
}

// NewService creates an access decision service
func NewService(db *gorm.DB, trials *trial.Engine) *Service {
	return &Service{db: db, trials: trials}
}

// Info is the full access projection for a tenant
type Info struct {
	HasAccess             bool                `json:"has_access"`
	HasActiveSubscription bool                `json:"has_active_subscription"`
	TrialStatus           *trial.Status       `json:"trial_status"`
	Subscription          *model.Subscription `json:"subscription,omitempty"`
}

// GetAccessInfo combines the tenant's newest ACTIVE/PENDING subscription
// with its trial status
func (s *Service) GetAccessInfo(tenantID uint) (*Info, error) {
	var sub model.Subscription
	err := s.db.Where("tenant_id = ? AND status IN ?", tenantID,
		[]model.SubscriptionStatus{model.SubscriptionActive, model.SubscriptionPending}).
		Order("created_at DESC").
		First(&sub).Error
	hasSubscription := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	trialStatus, err := s.trials.GetTrialStatus(tenantID)
	if err != nil {
		return nil, err
	}

	info := &Info{
		HasAccess:             hasSubscription || trialStatus.HasActiveTrial,
		HasActiveSubscription: hasSubscription,
		TrialStatus:           trialStatus,
	}
	if hasSubscription {
		info.Subscription = &sub
	}
	return info, nil
}

// HasAccess reports access with a paid-subscription short circuit: the trial
// is only consulted when no ACTIVE/PENDING subscription exists
func (s *Service) HasAccess(tenantID uint) (bool, error) {
	var count int64
	err := s.db.Model(&model.Subscription{}).
		Where("tenant_id = ? AND status IN ?", tenantID,
			[]model.SubscriptionStatus{model.SubscriptionActive, model.SubscriptionPending}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	trialStatus, err := s.trials.GetTrialStatus(tenantID)
	if err != nil {
		return false, err
	}
	return trialStatus.HasActiveTrial, nil
}
