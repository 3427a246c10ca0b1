package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/reconciler"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/hayttle/whatsapp-agents-ai-sub001/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebhookHandler receives billing gateway lifecycle events
type WebhookHandler struct {
	token      string
	reconciler *reconciler.Reconciler
}

// NewWebhookHandler creates a new billing webhook handler
func NewWebhookHandler(webhookToken string, rec *reconciler.Reconciler) *WebhookHandler {
	return &WebhookHandler{
		token:      webhookToken,
		reconciler: rec,
	}
}

// HandleBillingWebhook acknowledges a gateway event and reconciles it in the
// background. Once the access token matches, the gateway always gets a 200:
// processing failures are logged and dropped so the gateway never retries on
// our internal errors.
func (h *WebhookHandler) HandleBillingWebhook(c echo.Context) error {
	log := logger.FromEcho(c)

	token := c.Request().Header.Get("X-Billing-Access-Token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		log.Warn("Billing webhook with invalid access token")
		prometheus.RecordWebhookEvent("unknown", "rejected")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid access token"})
	}

	var event reconciler.Event
	if err := c.Bind(&event); err != nil {
		// An unparseable body carries nothing to reconcile; this is the only
		// post-auth path that responds with anything but 200.
		log.Error("Failed to parse billing webhook payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webhook payload"})
	}

	log.Info("Billing webhook received", zap.String("event", event.Event))

	// Acknowledge first; reconciliation is best-effort and must not block
	// or fail the gateway's delivery.
	go h.process(&event, log)

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func (h *WebhookHandler) process(event *reconciler.Event, log *zap.Logger) {
	if err := h.reconciler.Process(event); err != nil {
		log.Error("Billing event processing failed",
			zap.String("event", event.Event),
			zap.Error(err))
		prometheus.RecordWebhookEvent(event.Event, "failed")
		return
	}
	prometheus.RecordWebhookEvent(event.Event, "processed")
}
