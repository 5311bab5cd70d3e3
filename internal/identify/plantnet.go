package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

const plantNetBaseURL = "https://my-api.plantnet.org"

// PlantNet calls the Pl@ntNet v2 identify API across all floras.
type PlantNet struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewPlantNet creates a Pl@ntNet provider. An empty baseURL uses the public endpoint.
func NewPlantNet(apiKey, baseURL string, client *http.Client) *PlantNet {
	if baseURL == "" {
		baseURL = plantNetBaseURL
	}
	return &PlantNet{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *PlantNet) Name() string { return "plantnet" }

type plantNetResponse struct {
	Results []struct {
		Score   float64 `json:"score"`
		Species struct {
			ScientificNameWithoutAuthor string   `json:"scientificNameWithoutAuthor"`
			CommonNames                 []string `json:"commonNames"`
		} `json:"species"`
		Images []struct {
			URL struct {
				S string `json:"s"`
			} `json:"url"`
		} `json:"images"`
	} `json:"results"`
}

func (p *PlantNet) Identify(ctx context.Context, image []byte) ([]models.IdentificationCandidate, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("images", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := form.WriteField("organs", "auto"); err != nil {
		return nil, fmt.Errorf("failed to write organs: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	endpoint := p.baseURL + "/v2/identify/all?api-key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		// The URL carries the API key; keep it out of the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: plantnet: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Pl@ntNet answers 404 "Species not found" when nothing matched.
		return []models.IdentificationCandidate{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: plantnet returned %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed plantNetResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode plantnet response: %w", err)
	}

	out := make([]models.IdentificationCandidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		name := r.Species.ScientificNameWithoutAuthor
		c := models.IdentificationCandidate{
			Species:    name,
			CommonName: name,
			Confidence: r.Score,
		}
		if len(r.Species.CommonNames) > 0 && r.Species.CommonNames[0] != "" {
			c.CommonName = r.Species.CommonNames[0]
		}
		if len(r.Images) > 0 {
			c.ThumbnailURL = r.Images[0].URL.S
		}
		out = append(out, c)
	}
	return truncate(out), nil
}
