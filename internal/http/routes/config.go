// Package routes provides shared route registration for the Herbscan API.
// The server and the openapi command use the same definitions so the published
// document always matches what is served.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/herbscan-api/internal/http/mw"
	"github.com/jmylchreest/herbscan-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Herbscan API", version.Get().Short())
	cfg.Info.Description = "Plant identification with a free daily scan allowance and Stripe-backed pro entitlements."

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Access token issued by the auth provider, sent as `Authorization: Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Identify", Description: "Plant identification and scan history"},
		{Name: "Account", Description: "Entitlement and scan allowance"},
		{Name: "Webhooks", Description: "Inbound billing and auth provider events"},
		{Name: "Health", Description: "System health and status"},
	}

	return cfg
}
