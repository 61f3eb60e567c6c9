// internal/identity/provider.go
package identity

import (
	"context"
	"sync"
)

// Role is an opaque filter key for the aggregator; it never drives control
// flow beyond capability-table lookups.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFamily     Role = "family"
	RoleStaff      Role = "staff"
	RoleSpecialist Role = "specialist"
	RoleApplicant  Role = "applicant"
)

// ViewerContext is the identity and role of the person a notification list
// is computed for.
type ViewerContext struct {
	Identity string
	Role     Role
	// Area is the organizational area an internal viewer is routed threads
	// for. Empty for external roles.
	Area string
}

// Provider yields the current viewer and supports an explicit refresh after
// a role change.
type Provider interface {
	Current(ctx context.Context) (ViewerContext, error)
	Refresh(ctx context.Context) (ViewerContext, error)
}

// StaticProvider is a Provider over a settable viewer, used by the service
// wiring and by tests. The real claim issuance lives outside this engine.
type StaticProvider struct {
	mu     sync.RWMutex
	viewer ViewerContext
}

func NewStaticProvider(viewer ViewerContext) *StaticProvider {
	return &StaticProvider{viewer: viewer}
}

func (p *StaticProvider) Current(ctx context.Context) (ViewerContext, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewer, nil
}

func (p *StaticProvider) Refresh(ctx context.Context) (ViewerContext, error) {
	return p.Current(ctx)
}

// Set replaces the viewer, e.g. after a role change or re-login.
func (p *StaticProvider) Set(viewer ViewerContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewer = viewer
}
