package routes

import (
	"context"

	"github.com/jmylchreest/herbscan-api/internal/http/handlers"
)

// AccountHandlers defines the caller-scoped read operations.
type AccountHandlers interface {
	GetEntitlement(ctx context.Context, input *struct{}) (*handlers.GetEntitlementOutput, error)
	GetLimits(ctx context.Context, input *struct{}) (*handlers.GetLimitsOutput, error)
	ListScans(ctx context.Context, input *handlers.ListScansInput) (*handlers.ListScansOutput, error)
}

// Handlers aggregates the Huma operations for route registration.
// The server passes real implementations; the openapi command passes StubHandlers.
type Handlers struct {
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	Account AccountHandlers
}

// StubHandlers returns handlers that only carry type information.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(nil).Readyz,
		Account:     handlers.NewAccountHandlers(nil, nil, nil),
	}
}
