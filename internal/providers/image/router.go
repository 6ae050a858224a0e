package image

import "strings"

// Provider names as they appear in task records and log fields.
const (
	ProviderDashScope  = "dashscope"
	ProviderModelScope = "modelscope"
	ProviderLocal      = "local"
)

// Router maps a caller's plan to a preferred provider and computes the
// request-scoped fallback chain. It is a pure value: selection depends only
// on which credentials were configured at construction time.
type Router struct {
	dashscopeReady  bool
	modelscopeReady bool
}

// NewRouter records which remote adapters have credentials configured.
func NewRouter(dashscopeReady, modelscopeReady bool) *Router {
	return &Router{dashscopeReady: dashscopeReady, modelscopeReady: modelscopeReady}
}

// Choose returns the provider name preferred for the given plan. Pro plans
// get the synchronous DashScope adapter when it is configured; everyone else
// gets ModelScope when configured, and the local generator otherwise.
func (r *Router) Choose(plan string) string {
	if strings.EqualFold(strings.TrimSpace(plan), "pro") && r.dashscopeReady {
		return ProviderDashScope
	}
	if r.modelscopeReady {
		return ProviderModelScope
	}
	return ProviderLocal
}

// FallbackChain returns the ordered providers to attempt for one task:
// the chosen provider, then ModelScope when the choice was DashScope, then
// the local generator as the guaranteed terminal link.
func (r *Router) FallbackChain(chosen string) []string {
	chain := []string{chosen}
	if chosen == ProviderDashScope && r.modelscopeReady {
		chain = append(chain, ProviderModelScope)
	}
	if chosen != ProviderLocal {
		chain = append(chain, ProviderLocal)
	}
	return chain
}
