// Package search asks web-grounded LLM engines questions and returns their
// answers with the URLs they cite.
package search

import (
	"context"
	"strings"
)

// Answer is a grounded engine's reply.
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model,omitempty"`
	Usage     Usage    `json:"usage"`
}

// Usage is the token consumption of one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Empty reports whether the answer carries neither text nor citations.
func (a *Answer) Empty() bool {
	return a == nil || (strings.TrimSpace(a.Text) == "" && len(a.Citations) == 0)
}

// GroundedSearch answers a prompt using live web search.
type GroundedSearch interface {
	Name() string
	Ask(ctx context.Context, prompt string) (*Answer, error)
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
