package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler projects inbound billing gateway events onto local subscription
// and payment rows. All writes are last-write-wins keyed by the immutable
// gateway ids, so redelivered events are naturally idempotent. Events that
// reference unknown subscriptions are logged and dropped, never surfaced.
type Reconciler struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates a reconciler
func New(db *gorm.DB, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.L()
	}
	return &Reconciler{db: db, log: log}
}

// Process dispatches one gateway event. A nil return means the event was
// handled or deliberately dropped; errors are only returned for persistence
// failures the caller may want to log.
func (r *Reconciler) Process(event *Event) error {
	switch event.Event {
	case EventSubscriptionCreated, EventPaymentCreated:
		// Local rows are written synchronously at checkout; these events are informational.
		r.log.Debug("Ignoring informational billing event", zap.String("event", event.Event))
		return nil
	case EventSubscriptionUpdated:
		return r.handleSubscriptionUpdated(event.Subscription)
	case EventSubscriptionInactivated:
		return r.setStatusBySubscription(event.Subscription, model.SubscriptionCancelled)
	case EventPaymentReceived:
		return r.handlePaymentReceived(event.Payment)
	case EventPaymentOverdue:
		return r.setStatusByPayment(event.Payment, model.SubscriptionOverdue)
	case EventPaymentDeleted:
		return r.setStatusByPayment(event.Payment, model.SubscriptionSuspended)
	default:
		r.log.Warn("Unhandled billing event type", zap.String("event", event.Event))
		return nil
	}
}

// handleSubscriptionUpdated mirrors value, cycle and next due date from the gateway
func (r *Reconciler) handleSubscriptionUpdated(payload *SubscriptionPayload) error {
	if payload == nil || payload.ID == "" {
		r.log.Warn("Subscription update event without subscription payload")
		return nil
	}

	updates := map[string]interface{}{
		"value": payload.Value,
		"cycle": payload.Cycle,
	}
	if dueDate, ok := parseGatewayDate(payload.NextDueDate); ok {
		updates["next_due_date"] = dueDate
	}

	result := r.db.Model(&model.Subscription{}).
		Where("gateway_subscription_id = ?", payload.ID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update subscription %s: %w", payload.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		r.log.Warn("Subscription update for unknown gateway subscription",
			zap.String("gateway_subscription_id", payload.ID))
	}
	return nil
}

// setStatusBySubscription writes a status keyed by the event's subscription payload
func (r *Reconciler) setStatusBySubscription(payload *SubscriptionPayload, status model.SubscriptionStatus) error {
	if payload == nil || payload.ID == "" {
		r.log.Warn("Subscription event without subscription payload",
			zap.String("target_status", string(status)))
		return nil
	}
	return r.setSubscriptionStatus(payload.ID, status)
}

// setStatusByPayment writes a status keyed by the payment payload's subscription reference
func (r *Reconciler) setStatusByPayment(payload *PaymentPayload, status model.SubscriptionStatus) error {
	if payload == nil || payload.Subscription == "" {
		r.log.Warn("Payment event without subscription reference",
			zap.String("target_status", string(status)))
		return nil
	}
	return r.setSubscriptionStatus(payload.Subscription, status)
}

func (r *Reconciler) setSubscriptionStatus(gatewaySubscriptionID string, status model.SubscriptionStatus) error {
	result := r.db.Model(&model.Subscription{}).
		Where("gateway_subscription_id = ?", gatewaySubscriptionID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to set subscription %s to %s: %w", gatewaySubscriptionID, status, result.Error)
	}
	if result.RowsAffected == 0 {
		r.log.Warn("Status event for unknown gateway subscription",
			zap.String("gateway_subscription_id", gatewaySubscriptionID),
			zap.String("target_status", string(status)))
		return nil
	}

	r.log.Info("Subscription status reconciled",
		zap.String("gateway_subscription_id", gatewaySubscriptionID),
		zap.String("status", string(status)))
	return nil
}

// handlePaymentReceived upserts the payment row and activates the subscription
func (r *Reconciler) handlePaymentReceived(payload *PaymentPayload) error {
	if payload == nil || payload.ID == "" {
		r.log.Warn("Payment received event without payment payload")
		return nil
	}

	var sub model.Subscription
	err := r.db.Where("gateway_subscription_id = ?", payload.Subscription).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Warn("Payment for unknown subscription, dropping event",
			zap.String("gateway_payment_id", payload.ID),
			zap.String("gateway_subscription_id", payload.Subscription))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve subscription %s: %w", payload.Subscription, err)
	}

	paidAt := time.Now()
	if paymentDate, ok := parseGatewayDate(payload.PaymentDate); ok {
		paidAt = paymentDate
	}

	// Upsert keyed by the gateway payment id so redelivery keeps one row.
	var payment model.SubscriptionPayment
	err = r.db.Where("gateway_payment_id = ?", payload.ID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payment = model.SubscriptionPayment{
			SubscriptionID:        sub.ID,
			GatewayPaymentID:      payload.ID,
			GatewaySubscriptionID: payload.Subscription,
		}
	} else if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", payload.ID, err)
	}

	payment.Amount = payload.Value
	payment.NetAmount = payload.NetValue
	payment.Status = payload.Status
	payment.PaidAt = &paidAt
	payment.PaymentMethod = payload.BillingType
	payment.InvoiceURL = payload.InvoiceURL
	payment.InstallmentNumber = payload.InstallmentNumber
	if dueDate, ok := parseGatewayDate(payload.DueDate); ok {
		payment.DueDate = &dueDate
	}

	if err := r.db.Save(&payment).Error; err != nil {
		return fmt.Errorf("failed to upsert payment %s: %w", payload.ID, err)
	}

	updates := map[string]interface{}{
		"status":         model.SubscriptionActive,
		"paid_at":        paidAt,
		"payment_method": payload.BillingType,
		"invoice_url":    payload.InvoiceURL,
	}
	if err := r.db.Model(&model.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to activate subscription %d: %w", sub.ID, err)
	}

	r.log.Info("Payment reconciled",
		zap.String("gateway_payment_id", payload.ID),
		zap.Uint("subscription_id", sub.ID),
		zap.Float64("amount", payload.Value))
	return nil
}
