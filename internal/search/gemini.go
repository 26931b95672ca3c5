package search

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/competitor-intel/internal/resilience"
)

// DefaultGeminiModel is used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// geminiModels is the subset of *genai.Models used here.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks Gemini with the Google Search grounding tool enabled.
type Gemini struct {
	models geminiModels
	model  string
}

// NewGemini creates a Gemini API client for apiKey.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: create gemini client")
	}
	return newGemini(client.Models, model), nil
}

func newGemini(models geminiModels, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{models: models, model: model}
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Ask generates a grounded answer. Citations come from the grounding
// metadata's web chunks.
func (g *Gemini) Ask(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(researchSystemPrompt, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		Temperature:       genai.Ptr[float32](0.1),
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.Code) {
			return nil, resilience.NewTransientError(err, apiErr.Code)
		}
		return nil, eris.Wrap(err, "search: gemini ask")
	}

	var citations []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk != nil && chunk.Web != nil {
				citations = append(citations, chunk.Web.URI)
			}
		}
	}
	ans := &Answer{
		Text:      resp.Text(),
		Citations: dedupe(citations),
		Provider:  g.Name(),
		Model:     g.model,
	}
	if u := resp.UsageMetadata; u != nil {
		ans.Usage = Usage{InputTokens: int64(u.PromptTokenCount), OutputTokens: int64(u.CandidatesTokenCount)}
	}
	return ans, nil
}
