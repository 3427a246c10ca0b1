package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/plan"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/reconciler"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/billing"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/database"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/hayttle/whatsapp-agents-ai-sub001/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubscriptionHandler owns the checkout flow and the explicit subscription
// lifecycle operations. The local row and the remote gateway subscription
// must agree: when the local insert fails after the remote succeeded, the
// remote subscription is cancelled again.
type SubscriptionHandler struct {
	billing    *billing.Client
	reconciler *reconciler.Reconciler
	catalog    plan.Catalog
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(billingClient *billing.Client, rec *reconciler.Reconciler, catalog plan.Catalog) *SubscriptionHandler {
	if catalog == nil {
		catalog = plan.DefaultCatalog()
	}
	return &SubscriptionHandler{
		billing:    billingClient,
		reconciler: rec,
		catalog:    catalog,
	}
}

// CreateSubscription runs checkout for the caller's tenant: ensure a gateway
// customer exists, create the remote subscription, then insert the local
// PENDING row
func (h *SubscriptionHandler) CreateSubscription(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var req struct {
		PlanName    string  `json:"plan_name"`
		PlanType    string  `json:"plan_type"`
		Quantity    int     `json:"quantity"`
		Price       float64 `json:"price"`
		Cycle       string  `json:"cycle"`
		BillingType string  `json:"billing_type"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse subscription request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Quantity < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
	}
	planType := model.PlanType(req.PlanType)
	if _, known := h.catalog[planType]; !known {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown plan type"})
	}
	if req.Price <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price must be positive"})
	}
	if req.Cycle == "" {
		req.Cycle = "MONTHLY"
	}
	if req.BillingType == "" {
		req.BillingType = "CREDIT_CARD"
	}

	var tenant model.Tenant
	if err := database.GetDB().First(&tenant, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}
		log.Error("Failed to load tenant", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load tenant"})
	}

	// First billing interaction creates the gateway customer.
	if tenant.BillingCustomerID == nil {
		customer, err := h.billing.CreateCustomer(&billing.CreateCustomerRequest{Name: tenant.Name})
		if err != nil {
			prometheus.RecordGatewayRequest("create_customer", "error")
			log.Error("Failed to create billing customer", zap.Uint("tenant_id", tenantID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		prometheus.RecordGatewayRequest("create_customer", "success")

		tenant.BillingCustomerID = &customer.ID
		if err := database.GetDB().Model(&tenant).Update("billing_customer_id", customer.ID).Error; err != nil {
			log.Error("Failed to persist billing customer id", zap.Uint("tenant_id", tenantID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to persist billing customer"})
		}
	}

	value := req.Price * float64(req.Quantity)
	nextDueDate := time.Now().AddDate(0, 0, 1)

	remote, err := h.billing.CreateSubscription(&billing.CreateSubscriptionRequest{
		Customer:    *tenant.BillingCustomerID,
		BillingType: req.BillingType,
		Value:       value,
		NextDueDate: nextDueDate.Format("2006-01-02"),
		Cycle:       req.Cycle,
		Description: req.PlanName,
	})
	if err != nil {
		prometheus.RecordGatewayRequest("create_subscription", "error")
		log.Error("Failed to create billing subscription", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	prometheus.RecordGatewayRequest("create_subscription", "success")

	now := time.Now()
	sub := model.Subscription{
		TenantID:              tenantID,
		GatewaySubscriptionID: &remote.ID,
		PlanName:              req.PlanName,
		PlanType:              planType,
		Quantity:              req.Quantity,
		AllowedInstances:      h.catalog[planType].NativeInstances * req.Quantity,
		Status:                model.SubscriptionPending,
		Value:                 value,
		Price:                 req.Price,
		Cycle:                 req.Cycle,
		StartedAt:             &now,
		NextDueDate:           &nextDueDate,
		PaymentMethod:         req.BillingType,
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&sub); result.Error != nil {
		log.Error("Failed to insert local subscription, compensating remote",
			zap.String("gateway_subscription_id", remote.ID),
			zap.Error(result.Error))
		// The remote subscription must not outlive a failed local insert.
		if cancelErr := h.billing.CancelSubscription(remote.ID); cancelErr != nil {
			prometheus.RecordGatewayRequest("cancel_subscription", "error")
			log.Error("Compensating cancel failed, remote subscription orphaned",
				zap.String("gateway_subscription_id", remote.ID),
				zap.Error(cancelErr))
		} else {
			prometheus.RecordGatewayRequest("cancel_subscription", "success")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "subscription creation failed"})
	}

	prometheus.RecordSubscriptionOperation("checkout")
	log.Info("Subscription created",
		zap.Uint("id", sub.ID),
		zap.Uint("tenant_id", tenantID),
		zap.String("gateway_subscription_id", remote.ID),
		zap.String("plan_type", string(planType)),
		zap.Int("quantity", req.Quantity))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "Subscription created successfully",
		"subscription": sub,
	})
}

// ListSubscriptions returns all of the caller tenant's subscriptions, newest first
func (h *SubscriptionHandler) ListSubscriptions(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var subs []model.Subscription
	if result := database.GetDB().Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&subs); result.Error != nil {
		log.Error("Failed to list subscriptions", zap.Uint("tenant_id", tenantID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve subscriptions"})
	}

	return c.JSON(http.StatusOK, subs)
}

// CancelSubscription cancels the subscription remotely and locally
func (h *SubscriptionHandler) CancelSubscription(c echo.Context) error {
	log := logger.FromEcho(c)

	sub, ok := h.loadOwnedSubscription(c)
	if !ok {
		return nil
	}

	if sub.GatewaySubscriptionID != nil {
		if err := h.billing.CancelSubscription(*sub.GatewaySubscriptionID); err != nil {
			prometheus.RecordGatewayRequest("cancel_subscription", "error")
			log.Error("Failed to cancel billing subscription",
				zap.String("gateway_subscription_id", *sub.GatewaySubscriptionID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		prometheus.RecordGatewayRequest("cancel_subscription", "success")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := database.GetDB().Model(sub).Update("status", model.SubscriptionCancelled).Error; err != nil {
		log.Error("Failed to update subscription status", zap.Uint("id", sub.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel subscription"})
	}

	prometheus.RecordSubscriptionOperation("cancel")
	log.Info("Subscription cancelled", zap.Uint("id", sub.ID))

	return c.JSON(http.StatusOK, echo.Map{"message": "Subscription cancelled successfully"})
}

// ReactivateSubscription reopens a cancelled or inactive subscription
func (h *SubscriptionHandler) ReactivateSubscription(c echo.Context) error {
	log := logger.FromEcho(c)

	sub, ok := h.loadOwnedSubscription(c)
	if !ok {
		return nil
	}

	if sub.Status != model.SubscriptionCancelled && sub.Status != model.SubscriptionInactive {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subscription is not cancelled"})
	}

	if sub.GatewaySubscriptionID != nil {
		if _, err := h.billing.ReactivateSubscription(*sub.GatewaySubscriptionID); err != nil {
			prometheus.RecordGatewayRequest("reactivate_subscription", "error")
			log.Error("Failed to reactivate billing subscription",
				zap.String("gateway_subscription_id", *sub.GatewaySubscriptionID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		prometheus.RecordGatewayRequest("reactivate_subscription", "success")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := database.GetDB().Model(sub).Update("status", model.SubscriptionPending).Error; err != nil {
		log.Error("Failed to update subscription status", zap.Uint("id", sub.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reactivate subscription"})
	}

	prometheus.RecordSubscriptionOperation("reactivate")
	log.Info("Subscription reactivated", zap.Uint("id", sub.ID))

	return c.JSON(http.StatusOK, echo.Map{"message": "Subscription reactivated successfully"})
}

// UpdateQuantity changes the number of plan packs on a subscription and
// mirrors the new value onto the gateway
func (h *SubscriptionHandler) UpdateQuantity(c echo.Context) error {
	log := logger.FromEcho(c)

	sub, ok := h.loadOwnedSubscription(c)
	if !ok {
		return nil
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse quantity update request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Quantity < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
	}

	newValue := sub.Price * float64(req.Quantity)

	if sub.GatewaySubscriptionID != nil {
		if _, err := h.billing.UpdateSubscription(*sub.GatewaySubscriptionID, &billing.UpdateSubscriptionRequest{
			Value: &newValue,
		}); err != nil {
			prometheus.RecordGatewayRequest("update_subscription", "error")
			log.Error("Failed to update billing subscription",
				zap.String("gateway_subscription_id", *sub.GatewaySubscriptionID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		prometheus.RecordGatewayRequest("update_subscription", "success")
	}

	updates := map[string]interface{}{
		"quantity":          req.Quantity,
		"value":             newValue,
		"allowed_instances": h.catalog[sub.PlanType].NativeInstances * req.Quantity,
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := database.GetDB().Model(sub).Updates(updates).Error; err != nil {
		log.Error("Failed to update subscription quantity", zap.Uint("id", sub.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update quantity"})
	}

	prometheus.RecordSubscriptionOperation("update_quantity")
	log.Info("Subscription quantity updated",
		zap.Uint("id", sub.ID),
		zap.Int("quantity", req.Quantity))

	return c.JSON(http.StatusOK, echo.Map{"message": "Quantity updated successfully"})
}

// ListPayments returns the locally reconciled payments for a subscription
func (h *SubscriptionHandler) ListPayments(c echo.Context) error {
	log := logger.FromEcho(c)

	sub, ok := h.loadOwnedSubscription(c)
	if !ok {
		return nil
	}

	var payments []model.SubscriptionPayment
	if result := database.GetDB().Where("subscription_id = ?", sub.ID).Order("created_at DESC").Find(&payments); result.Error != nil {
		log.Error("Failed to list payments", zap.Uint("subscription_id", sub.ID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve payments"})
	}

	return c.JSON(http.StatusOK, payments)
}

// SyncPayments pulls the gateway's payment list for a subscription and
// replays the received ones through the reconciler. This is the manual
// recovery path for webhook deliveries lost to the fire-and-forget model.
func (h *SubscriptionHandler) SyncPayments(c echo.Context) error {
	log := logger.FromEcho(c)

	sub, ok := h.loadOwnedSubscription(c)
	if !ok {
		return nil
	}
	if sub.GatewaySubscriptionID == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subscription has no billing gateway reference"})
	}

	payments, err := h.billing.ListSubscriptionPayments(*sub.GatewaySubscriptionID)
	if err != nil {
		prometheus.RecordGatewayRequest("list_payments", "error")
		log.Error("Failed to list billing payments",
			zap.String("gateway_subscription_id", *sub.GatewaySubscriptionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	prometheus.RecordGatewayRequest("list_payments", "success")

	synced := 0
	for _, payment := range payments {
		if payment.Status != "RECEIVED" && payment.Status != "CONFIRMED" {
			continue
		}
		err := h.reconciler.Process(&reconciler.Event{
			Event: reconciler.EventPaymentReceived,
			Payment: &reconciler.PaymentPayload{
				ID:                payment.ID,
				Subscription:      payment.Subscription,
				Value:             payment.Value,
				NetValue:          payment.NetValue,
				Status:            payment.Status,
				DueDate:           payment.DueDate,
				PaymentDate:       payment.PaymentDate,
				BillingType:       payment.BillingType,
				InvoiceURL:        payment.InvoiceURL,
				InstallmentNumber: payment.InstallmentNumber,
			},
		})
		if err != nil {
			log.Error("Failed to reconcile synced payment",
				zap.String("gateway_payment_id", payment.ID),
				zap.Error(err))
			continue
		}
		synced++
	}

	log.Info("Payments synced from gateway",
		zap.Uint("subscription_id", sub.ID),
		zap.Int("total", len(payments)),
		zap.Int("synced", synced))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Payments synced successfully",
		"total":   len(payments),
		"synced":  synced,
	})
}

// loadOwnedSubscription resolves the :id path parameter to a subscription
// owned by the caller's tenant. On failure the error response has already
// been written and ok is false. Super admins may act on any tenant's
// subscription.
func (h *SubscriptionHandler) loadOwnedSubscription(c echo.Context) (*model.Subscription, bool) {
	log := logger.FromEcho(c)

	claims, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil, false
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid subscription ID", zap.Error(err))
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subscription ID"})
		return nil, false
	}

	var sub model.Subscription
	if err := database.GetDB().First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.JSON(http.StatusNotFound, echo.Map{"error": "subscription not found"})
			return nil, false
		}
		log.Error("Failed to load subscription", zap.Uint64("id", id), zap.Error(err))
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load subscription"})
		return nil, false
	}

	if sub.TenantID != tenantID && !claims.IsSuperAdmin() {
		log.Warn("Cross-tenant subscription access attempt",
			zap.Uint("requesting_tenant_id", tenantID),
			zap.Uint("subscription_tenant_id", sub.TenantID))
		_ = c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		return nil, false
	}

	return &sub, true
}
