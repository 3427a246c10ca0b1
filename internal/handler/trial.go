package handler

import (
	"net/http"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/trial"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/hayttle/whatsapp-agents-ai-sub001/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TrialHandler exposes trial creation and status
type TrialHandler struct {
	trials *trial.Engine
}

// NewTrialHandler creates a new trial handler
func NewTrialHandler(trials *trial.Engine) *TrialHandler {
	return &TrialHandler{trials: trials}
}

// CreateTrial starts a trial for the caller's tenant. The engine performs no
// uniqueness check, so an unexpired active trial is rejected here before
// creating a new row.
func (h *TrialHandler) CreateTrial(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var req struct {
		Days int `json:"days"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse trial creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Days < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must not be negative"})
	}

	status, err := h.trials.GetTrialStatus(tenantID)
	if err != nil {
		log.Error("Failed to check existing trial", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check existing trial"})
	}
	if status.HasActiveTrial {
		log.Warn("Trial creation rejected, tenant already has an active trial",
			zap.Uint("tenant_id", tenantID))
		return c.JSON(http.StatusConflict, echo.Map{"error": "tenant already has an active trial"})
	}

	created, err := h.trials.CreateTrial(tenantID, req.Days)
	if err != nil {
		log.Error("Failed to create trial", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "trial creation failed"})
	}

	prometheus.RecordTrialOperation("create")
	log.Info("Trial created",
		zap.Uint("trial_id", created.ID),
		zap.Uint("tenant_id", tenantID),
		zap.Time("expires_at", created.ExpiresAt))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Trial created successfully",
		"trial":   created,
	})
}

// GetTrialStatus returns the trial projection for the caller's tenant
func (h *TrialHandler) GetTrialStatus(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	status, err := h.trials.GetTrialStatus(tenantID)
	if err != nil {
		log.Error("Failed to get trial status", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get trial status"})
	}

	prometheus.RecordTrialOperation("status")
	return c.JSON(http.StatusOK, status)
}
