package routes

import (
	"net/http"
	"reflect"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/herbscan-api/internal/http/handlers"
	"github.com/jmylchreest/herbscan-api/internal/http/mw"
	"github.com/jmylchreest/herbscan-api/internal/service"
)

// Register registers all Huma routes with the given API instance.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	mw.ProtectedGet(api, "/api/v1/entitlement", h.Account.GetEntitlement,
		mw.WithTags("Account"),
		mw.WithSummary("Get entitlement"),
		mw.WithDescription("Returns the caller's pro status. `entitled` applies the period end check at read time; `is_pro` is the stored flag."),
		mw.WithOperationID("getEntitlement"))
	mw.ProtectedGet(api, "/api/v1/limits", h.Account.GetLimits,
		mw.WithTags("Account"),
		mw.WithSummary("Get scan limits"),
		mw.WithOperationID("getLimits"))
	mw.ProtectedGet(api, "/api/v1/scans", h.Account.ListScans,
		mw.WithTags("Identify"),
		mw.WithSummary("List scans"),
		mw.WithOperationID("listScans"))
}

// DocumentRawEndpoints adds the chi-served endpoints to the OpenAPI document. Nothing
// is routed through Huma for these.
func DocumentRawEndpoints(api huma.API) {
	oapi := api.OpenAPI()
	registry := oapi.Components.Schemas

	oapi.AddOperation(&huma.Operation{
		OperationID: "identify",
		Method:      http.MethodPost,
		Path:        "/api/v1/identify",
		Summary:     "Identify a plant",
		Description: "Accepts `application/json` with `imageBase64` (a data URI prefix is allowed) or " +
			"`multipart/form-data` with an `image` file. Free users are limited to a daily number of scans; " +
			"over the limit the response is 402 with `needsUpgrade`.",
		Tags:     []string{"Identify"},
		Security: []map[string][]string{{mw.SecurityScheme: {}}},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {Schema: registry.Schema(reflect.TypeOf(handlers.IdentifyRequest{}), true, "IdentifyRequest")},
				"multipart/form-data": {Schema: &huma.Schema{
					Type:       huma.TypeObject,
					Required:   []string{"image"},
					Properties: map[string]*huma.Schema{"image": {Type: huma.TypeString, Format: "binary"}},
				}},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Candidates, best first",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: registry.Schema(reflect.TypeOf(service.IdentifyResult{}), true, "IdentifyResult")},
				},
			},
			"400": {Description: "Missing or oversized image, or unsupported content type"},
			"401": {Description: "Missing or invalid bearer token"},
			"402": {Description: "Daily scan limit reached"},
			"502": {Description: "Identification provider unavailable"},
		},
	})

	oapi.AddOperation(&huma.Operation{
		OperationID: "stripeWebhook",
		Method:      http.MethodPost,
		Path:        "/api/v1/webhooks/stripe",
		Summary:     "Stripe webhook",
		Description: "Signed with the `Stripe-Signature` header. 400 is permanent, 500 asks Stripe to retry.",
		Tags:        []string{"Webhooks"},
		Responses: map[string]*huma.Response{
			"200": {Description: "Event acknowledged"},
			"400": {Description: "Signature or payload rejected"},
			"500": {Description: "Transient failure, retry"},
		},
	})

	oapi.AddOperation(&huma.Operation{
		OperationID: "authWebhook",
		Method:      http.MethodPost,
		Path:        "/api/v1/webhooks/auth",
		Summary:     "Auth provider webhook",
		Description: "Standard Webhooks (svix) signed user lifecycle events.",
		Tags:        []string{"Webhooks"},
		Responses: map[string]*huma.Response{
			"200": {Description: "Event acknowledged"},
			"400": {Description: "Signature or payload rejected"},
		},
	})
}
