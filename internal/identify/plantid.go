package identify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

const plantIDBaseURL = "https://api.plant.id"

// PlantID calls the Plant.id v2 identify API.
type PlantID struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewPlantID creates a Plant.id provider. An empty baseURL uses the public endpoint.
func NewPlantID(apiKey, baseURL string, client *http.Client) *PlantID {
	if baseURL == "" {
		baseURL = plantIDBaseURL
	}
	return &PlantID{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *PlantID) Name() string { return "plantid" }

type plantIDRequest struct {
	Images       []string `json:"images"`
	Modifiers    []string `json:"modifiers"`
	PlantDetails []string `json:"plant_details"`
}

type plantIDResponse struct {
	Suggestions []struct {
		PlantName    string  `json:"plant_name"`
		Probability  float64 `json:"probability"`
		PlantDetails struct {
			CommonNames []string `json:"common_names"`
		} `json:"plant_details"`
		SimilarImages []struct {
			URL string `json:"url"`
		} `json:"similar_images"`
	} `json:"suggestions"`
}

func (p *PlantID) Identify(ctx context.Context, image []byte) ([]models.IdentificationCandidate, error) {
	body, err := json.Marshal(plantIDRequest{
		Images:       []string{"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)},
		Modifiers:    []string{"similar_images"},
		PlantDetails: []string{"common_names"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/identify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: plant.id: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: plant.id returned %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed plantIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode plant.id response: %w", err)
	}

	out := make([]models.IdentificationCandidate, 0, len(parsed.Suggestions))
	for _, s := range parsed.Suggestions {
		c := models.IdentificationCandidate{
			Species:    s.PlantName,
			CommonName: s.PlantName,
			Confidence: s.Probability,
		}
		if len(s.PlantDetails.CommonNames) > 0 && s.PlantDetails.CommonNames[0] != "" {
			c.CommonName = s.PlantDetails.CommonNames[0]
		}
		if len(s.SimilarImages) > 0 {
			c.ThumbnailURL = s.SimilarImages[0].URL
		}
		out = append(out, c)
	}
	return truncate(out), nil
}
