// Package unified assembles the single best-effort view of a competitor:
// reconciled fields, knowledge-base context and the live snapshot.
package unified

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/kb"
	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/provider"
	"github.com/sells-group/competitor-intel/internal/reconcile"
)

// Store is the persistence the builder reads from.
type Store interface {
	ListKBExtractions(ctx context.Context, entityID string) ([]model.SourceRecord, error)
	ListDataSources(ctx context.Context, entityID string) ([]model.DataSourceRow, error)
	GetFieldValues(ctx context.Context, entityID string) (map[string]string, error)
}

// Builder builds UnifiedContexts. The knowledge base and provider registry
// are optional.
type Builder struct {
	store      Store
	reconciler *reconcile.Reconciler
	kb         kb.ContextProvider
	providers  *provider.Registry
	metrics    *metrics.Recorder
}

// Option configures a Builder.
type Option func(*Builder)

// WithKB sets the knowledge-base context provider.
func WithKB(p kb.ContextProvider) Option {
	return func(b *Builder) { b.kb = p }
}

// WithProviders adds enterprise provider values as live records.
func WithProviders(r *provider.Registry) Option {
	return func(b *Builder) { b.providers = r }
}

// WithMetrics records reconciliation methods.
func WithMetrics(m *metrics.Recorder) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder creates a Builder.
func NewBuilder(store Store, reconciler *reconcile.Reconciler, opts ...Option) *Builder {
	b := &Builder{store: store, reconciler: reconciler}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetUnifiedContext always returns a context. Each failing collaborator
// (store, knowledge base, providers) contributes nothing and is logged.
// A non-empty fields list restricts which fields are reconciled.
func (b *Builder) GetUnifiedContext(ctx context.Context, entityID, name, query string, fields []string) *model.UnifiedContext {
	log := zap.L().With(zap.String("entity_id", entityID))
	now := b.reconciler.Scorer().Now()

	uc := &model.UnifiedContext{
		EntityID:         entityID,
		EntityName:       name,
		Fields:           make(map[string]*model.ReconciliationResult),
		KBCitations:      []model.Citation{},
		LiveSnapshot:     make(map[string]string),
		ConflictsSummary: []string{},
		Freshness:        model.FreshnessSummary{StaleFields: []string{}},
		GeneratedAt:      now,
	}

	want := fieldFilter(fields)
	var records []model.SourceRecord

	kbRecs, err := b.store.ListKBExtractions(ctx, entityID)
	if err != nil {
		log.Warn("unified: kb extractions unavailable", zap.Error(err))
	}
	for _, r := range kbRecs {
		if !want(r.Field) {
			continue
		}
		r.Origin = model.OriginKB
		if r.SourceType == "" {
			r.SourceType = model.SourceKBExtraction
		}
		records = append(records, r)
	}

	rows, err := b.store.ListDataSources(ctx, entityID)
	if err != nil {
		log.Warn("unified: data sources unavailable", zap.Error(err))
	}
	for _, row := range rows {
		if !want(row.FieldName) || !usable(row.CurrentValue) {
			continue
		}
		records = append(records, rowRecord(row))
	}

	if b.providers.Len() > 0 && name != "" {
		fo := b.providers.FanOut(ctx, name)
		for _, e := range fo.Errors {
			log.Warn("unified: provider unavailable", zap.Error(e))
		}
		for _, r := range fo.Records(now) {
			if want(r.Field) {
				records = append(records, r)
			}
		}
	}

	uc.Fields = b.reconciler.ReconcileEntity(entityID, records)
	for _, r := range records {
		if r.Origin == model.OriginKB {
			uc.KBSourceCount++
		} else {
			uc.LiveSourceCount++
		}
	}
	uc.TotalSources = uc.KBSourceCount + uc.LiveSourceCount

	for field, res := range uc.Fields {
		b.metrics.Reconciled(string(res.Method))
		if len(res.Conflicts) > 0 {
			uc.ConflictsSummary = append(uc.ConflictsSummary, field)
		}
	}
	sort.Strings(uc.ConflictsSummary)
	uc.Freshness = freshness(records, uc.Fields, now, b.reconciler.Thresholds().StaleAfterDays)

	if b.kb != nil {
		if query == "" {
			query = strings.TrimSpace(name + " competitive overview")
		}
		res, err := b.kb.Query(ctx, query, map[string]string{
			kb.FilterEntityID:   entityID,
			kb.FilterEntityName: name,
		})
		if err != nil {
			log.Warn("unified: knowledge base unavailable", zap.Error(err))
		}
		if res != nil {
			uc.KBContext = res.Context
			if len(res.Citations) > 0 {
				uc.KBCitations = res.Citations
			}
		}
	}

	live, err := b.store.GetFieldValues(ctx, entityID)
	if err != nil {
		log.Warn("unified: live values unavailable", zap.Error(err))
	}
	for k, v := range live {
		if want(k) {
			uc.LiveSnapshot[k] = v
		}
	}

	log.Debug("unified: context built",
		zap.Int("fields", len(uc.Fields)),
		zap.Int("kb_sources", uc.KBSourceCount),
		zap.Int("live_sources", uc.LiveSourceCount),
		zap.Int("conflicts", len(uc.ConflictsSummary)),
	)
	return uc
}

func fieldFilter(fields []string) func(string) bool {
	if len(fields) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(string) bool { return true }
	}
	return func(f string) bool {
		_, ok := set[f]
		return ok
	}
}

func usable(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != model.Unverifiable
}

func rowRecord(row model.DataSourceRow) model.SourceRecord {
	extracted := row.ExtractedAt
	if extracted == nil && !row.UpdatedAt.IsZero() {
		at := row.UpdatedAt
		extracted = &at
	}
	return model.SourceRecord{
		Field:       row.FieldName,
		Value:       row.CurrentValue,
		SourceType:  row.SourceType,
		SourceID:    row.ID,
		Origin:      model.OriginLive,
		ExtractedAt: extracted,
		DataAsOf:    row.VerificationDate,
		IsVerified:  row.IsVerified,
		SourceURL:   row.SourceURL,
		SourceName:  row.SourceName,
	}
}

func freshness(records []model.SourceRecord, fields map[string]*model.ReconciliationResult, now time.Time, staleDays int) model.FreshnessSummary {
	fs := model.FreshnessSummary{StaleFields: []string{}}
	for _, r := range records {
		at := r.AsOf()
		if at == nil {
			continue
		}
		of := &fs.Live
		if r.Origin == model.OriginKB {
			of = &fs.KB
		}
		if of.Oldest == nil || at.Before(*of.Oldest) {
			t := *at
			of.Oldest = &t
		}
		if of.Newest == nil || at.After(*of.Newest) {
			t := *at
			of.Newest = &t
		}
	}

	cutoff := now.AddDate(0, 0, -staleDays)
	for field, res := range fields {
		if res.BestSource == nil || res.BestSource.AsOf == nil {
			continue
		}
		if res.BestSource.AsOf.Before(cutoff) {
			fs.StaleFields = append(fs.StaleFields, field)
		}
	}
	sort.Strings(fs.StaleFields)
	return fs
}
