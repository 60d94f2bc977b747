package search

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// GroundingClient searches through Gemini with the Google Search tool and
// turns the grounding metadata into results.
type GroundingClient struct {
	client *genai.Client
	model  string
}

func NewGroundingClient(ctx context.Context, cfg *config.Config) (*GroundingClient, error) {
	if cfg.GoogleApiKey == "" {
		return nil, fmt.Errorf("gemini grounding: %w", ErrMissingAPIKey)
	}

	// Initialize Gemini API client (API Key)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GoogleApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GroundingClient{client: client, model: cfg.GroundingModel}, nil
}

func (c *GroundingClient) Search(ctx context.Context, query string) (any, error) {
	trimmedQuery := trimToWordLimit(query, maxQueryWords)
	if trimmedQuery == "" {
		return []research.RawResult{}, nil
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(trimmedQuery), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini grounded search: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return []research.RawResult{}, nil
	}

	return groundingResults(resp.Candidates[0].GroundingMetadata), nil
}

// groundingResults maps grounding chunks to results; each result's content
// is the answer text segments supported by that chunk.
func groundingResults(meta *genai.GroundingMetadata) []research.RawResult {
	segments := make(map[int][]string)
	for _, support := range meta.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		text := strings.TrimSpace(support.Segment.Text)
		if text == "" {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			segments[int(idx)] = append(segments[int(idx)], text)
		}
	}

	results := make([]research.RawResult, 0, len(meta.GroundingChunks))
	for i, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		results = append(results, research.RawResult{
			URL:     chunk.Web.URI,
			Title:   chunk.Web.Title,
			Content: strings.Join(segments[i], " "),
		})
	}
	return results
}
