package handler

import (
	"net/http"
	"time"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/access"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/plan"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/database"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/jwtutil"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/hayttle/whatsapp-agents-ai-sub001/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ResourceHandler creates quota-gated resources (WhatsApp instances and
// agents). Every creation runs the access gate first and the plan limit
// check second; super admins skip both.
type ResourceHandler struct {
	access *access.Service
	plans  *plan.Engine
}

// NewResourceHandler creates a new resource handler
func NewResourceHandler(accessService *access.Service, plans *plan.Engine) *ResourceHandler {
	return &ResourceHandler{access: accessService, plans: plans}
}

// gate runs the access check and the plan limit check for one proposed
// creation. A non-nil return means the rejection response was already
// written; the bool reports whether the caller may proceed.
func (h *ResourceHandler) gate(c echo.Context, claims *jwtutil.UserClaims, tenantID uint, action string, resource plan.ResourceType) (bool, error) {
	log := logger.FromEcho(c)

	if claims.IsSuperAdmin() {
		return true, nil
	}

	hasAccess, err := h.access.HasAccess(tenantID)
	if err != nil {
		log.Error("Failed to check access", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check access"})
	}
	if !hasAccess {
		prometheus.RecordAccessCheck("denied")
		log.Warn("Creation rejected, tenant has no access",
			zap.Uint("tenant_id", tenantID),
			zap.String("action", action))
		return false, c.JSON(http.StatusForbidden, echo.Map{"error": "access denied: no active subscription or trial"})
	}
	prometheus.RecordAccessCheck("granted")

	result, err := h.plans.CheckPlanLimits(tenantID, action, resource)
	if err != nil {
		log.Error("Failed to check plan limits", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check plan limits"})
	}
	if !result.Allowed {
		prometheus.RecordLimitCheck(string(resource), "denied")
		log.Warn("Creation rejected, plan limit reached",
			zap.Uint("tenant_id", tenantID),
			zap.String("action", action),
			zap.String("reason", result.Reason))
		return false, c.JSON(http.StatusForbidden, echo.Map{
			"error":         result.Reason,
			"limit_reached": true,
			"total_limits":  result.TotalLimits,
		})
	}
	prometheus.RecordLimitCheck(string(resource), "allowed")

	return true, nil
}

// CreateInstance provisions a WhatsApp instance for the caller's tenant
func (h *ResourceHandler) CreateInstance(c echo.Context) error {
	log := logger.FromEcho(c)

	claims, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var req struct {
		Name         string `json:"name"`
		ProviderType string `json:"provider_type"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse instance creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	providerType := model.ProviderType(req.ProviderType)
	if providerType == "" {
		providerType = model.ProviderNative
	}

	var resource plan.ResourceType
	switch providerType {
	case model.ProviderNative:
		resource = plan.ResourceNativeInstance
	case model.ProviderExternal:
		resource = plan.ResourceExternalInstance
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid provider type"})
	}

	if allowed, resp := h.gate(c, claims, tenantID, "create_instance", resource); !allowed {
		return resp
	}

	instance := model.WhatsAppInstance{
		TenantID:     tenantID,
		Name:         req.Name,
		ProviderType: providerType,
		Status:       "disconnected",
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&instance); result.Error != nil {
		log.Error("Failed to create instance", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "instance creation failed"})
	}

	log.Info("WhatsApp instance created",
		zap.Uint("id", instance.ID),
		zap.Uint("tenant_id", tenantID),
		zap.String("provider_type", string(providerType)))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":  "Instance created successfully",
		"instance": instance,
	})
}

// ListInstances returns the caller tenant's WhatsApp instances
func (h *ResourceHandler) ListInstances(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var instances []model.WhatsAppInstance
	if result := database.GetDB().Where("tenant_id = ?", tenantID).Find(&instances); result.Error != nil {
		log.Error("Failed to list instances", zap.Uint("tenant_id", tenantID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve instances"})
	}

	return c.JSON(http.StatusOK, instances)
}

// CreateAgent provisions an AI agent for the caller's tenant
func (h *ResourceHandler) CreateAgent(c echo.Context) error {
	log := logger.FromEcho(c)

	claims, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var req struct {
		Name      string `json:"name"`
		AgentType string `json:"agent_type"`
		Prompt    string `json:"prompt"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse agent creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	agentType := model.AgentType(req.AgentType)
	if agentType == "" {
		agentType = model.AgentInternal
	}

	var resource plan.ResourceType
	switch agentType {
	case model.AgentInternal:
		resource = plan.ResourceInternalAgent
	case model.AgentExternal:
		resource = plan.ResourceExternalAgent
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid agent type"})
	}

	if allowed, resp := h.gate(c, claims, tenantID, "create_agent", resource); !allowed {
		return resp
	}

	agent := model.Agent{
		TenantID:  tenantID,
		Name:      req.Name,
		AgentType: agentType,
		Prompt:    req.Prompt,
		Active:    true,
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&agent); result.Error != nil {
		log.Error("Failed to create agent", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agent creation failed"})
	}

	log.Info("Agent created",
		zap.Uint("id", agent.ID),
		zap.Uint("tenant_id", tenantID),
		zap.String("agent_type", string(agentType)))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Agent created successfully",
		"agent":   agent,
	})
}

// ListAgents returns the caller tenant's agents
func (h *ResourceHandler) ListAgents(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	var agents []model.Agent
	if result := database.GetDB().Where("tenant_id = ?", tenantID).Find(&agents); result.Error != nil {
		log.Error("Failed to list agents", zap.Uint("tenant_id", tenantID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve agents"})
	}

	return c.JSON(http.StatusOK, agents)
}

// GetPlanUsage reports the tenant's live usage, combined limits and usage percentages
func (h *ResourceHandler) GetPlanUsage(c echo.Context) error {
	log := logger.FromEcho(c)

	_, tenantID, ok := tenantClaims(c)
	if !ok {
		return nil
	}

	usage, err := h.plans.GetUsageStats(tenantID)
	if err != nil {
		log.Error("Failed to get usage stats", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get usage stats"})
	}

	subs, err := h.plans.GetActiveSubscriptions(tenantID)
	if err != nil {
		log.Error("Failed to get active subscriptions", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get active subscriptions"})
	}

	percentages, err := h.plans.GetTotalUsagePercentage(tenantID)
	if err != nil {
		log.Error("Failed to get usage percentages", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get usage percentages"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"usage":        usage,
		"total_limits": h.plans.CalculateTotalLimits(subs),
		"percentages":  percentages,
	})
}
