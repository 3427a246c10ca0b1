package handler

import (
	"net/http"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/access"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/hayttle/whatsapp-agents-ai-sub001/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AccessHandler exposes the access decision for the caller's tenant
type AccessHandler struct {
	access *access.Service
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(accessService *access.Service) *AccessHandler {
	return &AccessHandler{access: accessService}
}

// GetAccessInfo returns whether the caller's tenant currently has access to
// gated features. Super admins bypass the trial/subscription gate entirely.
func (h *AccessHandler) GetAccessInfo(c echo.Context) error {
	log := logger.FromEcho(c)

	claims, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	if claims.IsSuperAdmin() {
		prometheus.RecordAccessCheck("granted")
		return c.JSON(http.StatusOK, echo.Map{
			"has_access":  true,
			"super_admin": true,
		})
	}

	info, err := h.access.GetAccessInfo(tenantID)
	if err != nil {
		log.Error("Failed to get access info", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get access info"})
	}

	if info.HasAccess {
		prometheus.RecordAccessCheck("granted")
	} else {
		prometheus.RecordAccessCheck("denied")
	}

	return c.JSON(http.StatusOK, info)
}
