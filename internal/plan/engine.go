package plan

import (
	"fmt"
	"math"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Engine computes a tenant's combined plan allowances and checks proposed
// creations against them. Checks are pure pre-checks: the engine never
// creates the resource, and the caller's check-then-insert sequence is not
// transactional.
type Engine struct {
	db      *gorm.DB
	catalog Catalog
}

// NewEngine creates a limit engine with the given plan catalog
func NewEngine(db *gorm.DB, catalog Catalog) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{db: db, catalog: catalog}
}

// UsageStats holds a tenant's live resource counts
type UsageStats struct {
	NativeInstances   int `json:"native_instances"`
	ExternalInstances int `json:"external_instances"`
	InternalAgents    int `json:"internal_agents"`
	ExternalAgents    int `json:"external_agents"`
}

// ForResource returns the count for one resource type
func (u UsageStats) ForResource(resource ResourceType) int {
	switch resource {
	case ResourceNativeInstance:
		return u.NativeInstances
	case ResourceExternalInstance:
		return u.ExternalInstances
	case ResourceInternalAgent:
		return u.InternalAgents
	case ResourceExternalAgent:
		return u.ExternalAgents
	default:
		return 0
	}
}

// TotalLimits holds a tenant's combined allowances across all active subscriptions
type TotalLimits struct {
	NativeInstances   int `json:"native_instances"`
	ExternalInstances int `json:"external_instances"`
	InternalAgents    int `json:"internal_agents"`
	ExternalAgents    int `json:"external_agents"`
}

// ForResource returns the limit for one resource type
func (l TotalLimits) ForResource(resource ResourceType) int {
	switch resource {
	case ResourceNativeInstance:
		return l.NativeInstances
	case ResourceExternalInstance:
		return l.ExternalInstances
	case ResourceInternalAgent:
		return l.InternalAgents
	case ResourceExternalAgent:
		return l.ExternalAgents
	default:
		return 0
	}
}

// CheckResult is the outcome of a plan limit check
type CheckResult struct {
	Allowed     bool        `json:"allowed"`
	Reason      string      `json:"reason,omitempty"`
	TotalLimits TotalLimits `json:"total_limits"`
}

// GetUsageStats counts the tenant's current instances and agents by type.
// Counts are always live reads, never cached.
func (e *Engine) GetUsageStats(tenantID uint) (*UsageStats, error) {
	stats := &UsageStats{}

	instanceCounts := []struct {
		provider model.ProviderType
		target   *int
	}{
		{model.ProviderNative, &stats.NativeInstances},
		{model.ProviderExternal, &stats.ExternalInstances},
	}
	for _, ic := range instanceCounts {
		var n int64
		if err := e.db.Model(&model.WhatsAppInstance{}).
			Where("tenant_id = ? AND provider_type = ?", tenantID, ic.provider).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count instances: %w", err)
		}
		*ic.target = int(n)
	}

	agentCounts := []struct {
		agentType model.AgentType
		target    *int
	}{
		{model.AgentInternal, &stats.InternalAgents},
		{model.AgentExternal, &stats.ExternalAgents},
	}
	for _, ac := range agentCounts {
		var n int64
		if err := e.db.Model(&model.Agent{}).
			Where("tenant_id = ? AND agent_type = ?", tenantID, ac.agentType).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count agents: %w", err)
		}
		*ac.target = int(n)
	}

	return stats, nil
}

// GetActiveSubscriptions returns the tenant's ACTIVE and PENDING subscriptions, newest first
func (e *Engine) GetActiveSubscriptions(tenantID uint) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := e.db.Where("tenant_id = ? AND status IN ?", tenantID,
		[]model.SubscriptionStatus{model.SubscriptionActive, model.SubscriptionPending}).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscriptions: %w", err)
	}
	return subs, nil
}

// CalculateTotalLimits sums allowance×quantity over the given subscriptions.
// The model is additive: two starter subscriptions of quantity 1 grant the
// same limits as one starter subscription of quantity 2.
func (e *Engine) CalculateTotalLimits(subs []model.Subscription) TotalLimits {
	var total TotalLimits
	for _, sub := range subs {
		allowance, ok := e.catalog[sub.PlanType]
		if !ok {
			continue
		}
		quantity := sub.Quantity
		if quantity < 1 {
			quantity = 1
		}
		total.NativeInstances += allowance.NativeInstances * quantity
		total.ExternalInstances += allowance.ExternalInstances * quantity
		total.InternalAgents += allowance.InternalAgents * quantity
		total.ExternalAgents += allowance.ExternalAgents * quantity
	}
	return total
}

// CheckPlanLimits decides whether the tenant may create one more resource of
// the given type. Usage and subscriptions are independent reads and are
// fetched concurrently.
func (e *Engine) CheckPlanLimits(tenantID uint, action string, resource ResourceType) (*CheckResult, error) {
	var (
		usage *UsageStats
		subs  []model.Subscription
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		u, err := e.GetUsageStats(tenantID)
		usage = u
		return err
	})
	g.Go(func() error {
		s, err := e.GetActiveSubscriptions(tenantID)
		subs = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	limits := e.CalculateTotalLimits(subs)
	current := usage.ForResource(resource)
	limit := limits.ForResource(resource)

	result := &CheckResult{
		Allowed:     current < limit,
		TotalLimits: limits,
	}
	if !result.Allowed {
		result.Reason = fmt.Sprintf("plan limit reached: %d/%d %s used", current, limit, resourceLabel(resource))
	}

	zap.L().Debug("Plan limit check",
		zap.Uint("tenant_id", tenantID),
		zap.String("action", action),
		zap.String("resource", string(resource)),
		zap.Int("current", current),
		zap.Int("limit", limit),
		zap.Bool("allowed", result.Allowed))

	return result, nil
}

// GetTotalUsagePercentage reports per-resource usage as a rounded percentage
// of the tenant's combined limits; resources with a zero limit report zero.
func (e *Engine) GetTotalUsagePercentage(tenantID uint) (map[ResourceType]int, error) {
	usage, err := e.GetUsageStats(tenantID)
	if err != nil {
		return nil, err
	}
	subs, err := e.GetActiveSubscriptions(tenantID)
	if err != nil {
		return nil, err
	}
	limits := e.CalculateTotalLimits(subs)

	percentages := make(map[ResourceType]int, 4)
	for _, resource := range []ResourceType{
		ResourceNativeInstance,
		ResourceExternalInstance,
		ResourceInternalAgent,
		ResourceExternalAgent,
	} {
		limit := limits.ForResource(resource)
		if limit == 0 {
			percentages[resource] = 0
			continue
		}
		percentages[resource] = int(math.Round(float64(usage.ForResource(resource)) / float64(limit) * 100))
	}
	return percentages, nil
}
