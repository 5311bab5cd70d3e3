// Package identify adapts plant identification APIs to a common candidate list.
package identify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// MaxCandidates is the number of candidates returned to clients.
const MaxCandidates = 5

// ErrProviderUnavailable wraps transport and non-2xx failures from an upstream provider.
var ErrProviderUnavailable = errors.New("identification provider unavailable")

// Provider identifies the plant in an image.
type Provider interface {
	// Name is the provider identifier recorded with each scan.
	Name() string
	// Identify returns at most MaxCandidates candidates, best first.
	Identify(ctx context.Context, image []byte) ([]models.IdentificationCandidate, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider   string // "mock", "plantid" or "plantnet"
	APIKey     string
	BaseURL    string // overrides the provider's public endpoint
	Timeout    time.Duration
	HTTPClient *http.Client
}

// New returns the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	switch cfg.Provider {
	case "", "mock":
		return Mock{}, nil
	case "plantid":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("plantid provider requires an API key")
		}
		return NewPlantID(cfg.APIKey, cfg.BaseURL, client), nil
	case "plantnet":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("plantnet provider requires an API key")
		}
		return NewPlantNet(cfg.APIKey, cfg.BaseURL, client), nil
	default:
		return nil, fmt.Errorf("unknown identification provider %q", cfg.Provider)
	}
}

func truncate(c []models.IdentificationCandidate) []models.IdentificationCandidate {
	if len(c) > MaxCandidates {
		return c[:MaxCandidates]
	}
	return c
}
