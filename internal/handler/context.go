package handler

import (
	"net/http"

	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/jwtutil"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
)

// tenantClaims pulls the authenticated claims and tenant scope out of the
// request context. When either is missing the error response has already
// been written and ok is false.
func tenantClaims(c echo.Context) (claims *jwtutil.UserClaims, tenantID uint, ok bool) {
	log := logger.FromEcho(c)

	claims, valid := c.Get("user").(*jwtutil.UserClaims)
	if !valid {
		log.Error("Failed to get user claims from context")
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		return nil, 0, false
	}

	if claims.TenantID == nil {
		log.Error("Tenant ID is missing from user claims")
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant context required"})
		return nil, 0, false
	}

	return claims, *claims.TenantID, true
}
