package identify

import (
	"context"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// Mock returns a fixed candidate list. Used in development and tests.
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Identify(ctx context.Context, _ []byte) ([]models.IdentificationCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []models.IdentificationCandidate{
		{Species: "Matricaria chamomilla", CommonName: "German Chamomile", Confidence: 0.92},
		{Species: "Mentha × piperita", CommonName: "Peppermint", Confidence: 0.85},
		{Species: "Curcuma longa", CommonName: "Turmeric", Confidence: 0.78},
		{Species: "Zingiber officinale", CommonName: "Ginger", Confidence: 0.71},
		{Species: "Echinacea purpurea", CommonName: "Purple Coneflower", Confidence: 0.64},
	}, nil
}
