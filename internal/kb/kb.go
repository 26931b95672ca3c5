// Package kb retrieves knowledge-base context for a competitor from an
// ordered list of providers.
package kb

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/resilience"
)

// Filter keys understood by providers.
const (
	FilterEntityID   = "entity_id"
	FilterEntityName = "entity_name"
)

// Result is the context text a provider assembled plus its citations.
type Result struct {
	Context    string           `json:"context"`
	Citations  []model.Citation `json:"citations"`
	ChunksUsed int              `json:"chunks_used"`
}

// Empty reports whether the result carries no context.
func (r *Result) Empty() bool {
	return r == nil || strings.TrimSpace(r.Context) == ""
}

// ContextProvider answers a free-text query scoped by filters.
type ContextProvider interface {
	Name() string
	Query(ctx context.Context, text string, filters map[string]string) (*Result, error)
}

// Chain tries providers in order and returns the first non-empty result.
type Chain struct {
	providers []ContextProvider
}

// NewChain builds a chain. Nil providers are dropped.
func NewChain(providers ...ContextProvider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Query never fails on a single provider. It returns an empty result and
// nil when providers simply had nothing, and an empty result with a
// KindCollaboratorUnavailable error only when every provider failed.
func (c *Chain) Query(ctx context.Context, text string, filters map[string]string) (*Result, error) {
	var errs []error
	for _, p := range c.providers {
		res, err := p.Query(ctx, text, filters)
		if err != nil {
			zap.L().Warn("kb: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("entity_id", filters[FilterEntityID]),
				zap.Error(err),
			)
			errs = append(errs, eris.Wrapf(err, "kb: %s", p.Name()))
			continue
		}
		if !res.Empty() {
			return res, nil
		}
	}
	if len(errs) > 0 && len(errs) == len(c.providers) {
		return &Result{}, resilience.NewCollaboratorError(resilience.KindCollaboratorUnavailable, "kb", errors.Join(errs...))
	}
	return &Result{}, nil
}
