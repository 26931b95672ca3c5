package provider

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/resilience"
)

// FieldValue is the merged value for one field and the provider it came from.
type FieldValue struct {
	Field      string           `json:"field"`
	Value      string           `json:"value"`
	SourceURL  string           `json:"source_url,omitempty"`
	Provider   string           `json:"provider"`
	SourceType model.SourceType `json:"source_type"`
	DataAsOf   *time.Time       `json:"data_as_of,omitempty"`
}

// FanOutResult collects every provider's answer plus the per-field merge.
type FanOutResult struct {
	// Merged holds, per field, the first non-empty value in authority order.
	Merged map[string]FieldValue
	// Results is keyed by provider name; providers that failed or had no
	// data are absent.
	Results map[string]*Result
	Errors  []error
}

// Value returns the merged value for field, if any.
func (f *FanOutResult) Value(field string) (FieldValue, bool) {
	if f == nil {
		return FieldValue{}, false
	}
	v, ok := f.Merged[field]
	return v, ok
}

// Records converts the merged values into live-origin source records.
func (f *FanOutResult) Records(extractedAt time.Time) []model.SourceRecord {
	if f == nil {
		return nil
	}
	out := make([]model.SourceRecord, 0, len(f.Merged))
	for _, fv := range f.Merged {
		at := extractedAt
		out = append(out, model.SourceRecord{
			Field:       fv.Field,
			Value:       fv.Value,
			SourceType:  fv.SourceType,
			SourceID:    fv.Provider,
			SourceName:  fv.Provider,
			SourceURL:   fv.SourceURL,
			Origin:      model.OriginLive,
			DataAsOf:    fv.DataAsOf,
			ExtractedAt: &at,
		})
	}
	return out
}

// query calls p under the per-provider timeout. A throttled provider waits
// for capacity on ctx first.
func (r *Registry) query(ctx context.Context, p FieldValueProvider, name string) (*Result, error) {
	if t, ok := p.(throttled); ok {
		if err := t.Wait(ctx); err != nil {
			return nil, err
		}
		p = t.Unwrap()
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return p.QueryEntity(callCtx, name)
}

// FanOut queries every provider in parallel, each under its own timeout.
// A failing provider never affects the others: its error is collected and
// the merge proceeds with whatever succeeded.
func (r *Registry) FanOut(ctx context.Context, name string) *FanOutResult {
	out := &FanOutResult{
		Merged:  make(map[string]FieldValue),
		Results: make(map[string]*Result),
	}
	if r == nil {
		return out
	}

	providers := r.snapshot()
	results := make([]*Result, len(providers))
	errs := make([]error, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			res, err := r.query(ctx, p, name)
			r.metrics.ProviderCall(p.Name(), err)
			if err != nil {
				errs[i] = resilience.NewCollaboratorError(resilience.KindProvider, p.Name(),
					eris.Wrapf(err, "provider: query %q", name))
				zap.L().Warn("provider: query failed",
					zap.String("provider", p.Name()),
					zap.String("entity", name),
					zap.Error(err),
				)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range providers {
		if errs[i] != nil {
			out.Errors = append(out.Errors, errs[i])
			continue
		}
		res := results[i]
		if res == nil {
			continue
		}
		out.Results[p.Name()] = res
		for field, value := range res.Fields {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if _, taken := out.Merged[field]; taken {
				continue
			}
			out.Merged[field] = FieldValue{
				Field:      field,
				Value:      value,
				SourceURL:  res.SourceURLs[field],
				Provider:   p.Name(),
				SourceType: p.SourceType(),
				DataAsOf:   res.DataAsOf,
			}
		}
	}
	return out
}
