package search

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/resilience"
	"github.com/sells-group/competitor-intel/pkg/perplexity"
)

const researchSystemPrompt = "You are a competitive intelligence researcher. " +
	"Answer only from sources you can cite. Prefer primary sources such as filings, " +
	"the company's own site and reputable press."

// Perplexity adapts the Perplexity sonar models.
type Perplexity struct {
	client perplexity.Client
	model  string
}

// NewPerplexity wraps a Perplexity client. An empty model uses the client default.
func NewPerplexity(client perplexity.Client, model string) *Perplexity {
	return &Perplexity{client: client, model: model}
}

// Name returns "perplexity".
func (p *Perplexity) Name() string { return "perplexity" }

// Ask sends prompt with a research system message. 429 and 5xx responses
// come back as transient errors.
func (p *Perplexity) Ask(ctx context.Context, prompt string) (*Answer, error) {
	temp := 0.1
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: researchSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "search: perplexity ask")
	}
	return &Answer{
		Text:      resp.Content(),
		Citations: dedupe(resp.Sources()),
		Provider:  p.Name(),
		Model:     p.model,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}
