package plan

import "github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"

// ResourceType names a quota-gated resource
type ResourceType string

const (
	ResourceNativeInstance   ResourceType = "native"
	ResourceExternalInstance ResourceType = "external"
	ResourceInternalAgent    ResourceType = "internal_agent"
	ResourceExternalAgent    ResourceType = "external_agent"
)

// Allowance is the resource grant of one unit of quantity of a plan type
type Allowance struct {
	NativeInstances   int
	ExternalInstances int
	InternalAgents    int
	ExternalAgents    int
}

// Catalog maps plan types to their per-unit allowances. It is immutable
// policy injected at engine construction; plan types missing from the
// catalog grant nothing.
type Catalog map[model.PlanType]Allowance

// DefaultCatalog returns the stock plan policy. Custom plans are bespoke,
// manually provisioned exceptions and contribute zero to computed limits.
func DefaultCatalog() Catalog {
	return Catalog{
		model.PlanStarter: {NativeInstances: 2, ExternalInstances: 2, InternalAgents: 1, ExternalAgents: 1},
		model.PlanPro:     {NativeInstances: 5, ExternalInstances: 5, InternalAgents: 3, ExternalAgents: 3},
		model.PlanCustom:  {},
	}
}

// resourceLabel is the human-readable name used in limit denial reasons
func resourceLabel(resource ResourceType) string {
	switch resource {
	case ResourceNativeInstance:
		return "native instances"
	case ResourceExternalInstance:
		return "external instances"
	case ResourceInternalAgent:
		return "internal agents"
	case ResourceExternalAgent:
		return "external agents"
	default:
		return string(resource)
	}
}
