package unified

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/kb"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/provider"
	"github.com/sells-group/competitor-intel/internal/reconcile"
	"github.com/sells-group/competitor-intel/internal/scoring"
	"github.com/sells-group/competitor-intel/internal/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newReconciler() *reconcile.Reconciler {
	return reconcile.New(reconcile.WithScorer(scoring.NewScorer(scoring.WithNow(func() time.Time { return now }))))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "unified.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s store.Store) *model.Competitor {
	t.Helper()
	ctx := context.Background()
	c := &model.Competitor{Name: "Acme", Website: "https://acme.io"}
	require.NoError(t, s.UpsertCompetitor(ctx, c))

	_, err := s.InsertKBExtractions(ctx, c.ID, []model.SourceRecord{
		{Field: "revenue", Value: "$10M", SourceType: model.SourceRegulatoryFiling, SourceName: "10-K", DataAsOf: day(2026, 2, 1)},
		{Field: "ceo", Value: "Jane Doe", SourceType: model.SourceKBExtraction, DataAsOf: day(2025, 6, 1)},
	})
	require.NoError(t, err)

	require.NoError(t, s.SetFieldValue(ctx, c.ID, "revenue", "$20M"))
	require.NoError(t, s.SetFieldValue(ctx, c.ID, "ceo", "Jane Doe"))
	require.NoError(t, s.UpsertDataSource(ctx, &model.DataSourceRow{
		EntityID: c.ID, FieldName: "revenue", CurrentValue: "$20M",
		SourceType: model.SourceVerifiedAPI, SourceURL: "https://api.example/acme",
		ExtractedAt: day(2026, 2, 20),
	}))
	require.NoError(t, s.UpsertDataSource(ctx, &model.DataSourceRow{
		EntityID: c.ID, FieldName: "tagline", CurrentValue: model.Unverifiable,
		SourceType: model.SourceWebsiteScrape, ExtractedAt: day(2026, 2, 20),
	}))
	return c
}

type fakeKB struct {
	res     *kb.Result
	err     error
	query   string
	filters map[string]string
}

func (f *fakeKB) Name() string { return "fake" }

func (f *fakeKB) Query(_ context.Context, text string, filters map[string]string) (*kb.Result, error) {
	f.query, f.filters = text, filters
	return f.res, f.err
}

type stubProvider struct {
	fields map[string]string
}

func (s *stubProvider) Name() string                 { return "crm" }
func (s *stubProvider) SourceType() model.SourceType { return model.SourceClientProvided }

func (s *stubProvider) QueryEntity(context.Context, string) (*provider.Result, error) {
	return &provider.Result{Fields: s.fields}, nil
}

func TestGetUnifiedContext_MergesKBAndLive(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)
	k := &fakeKB{res: &kb.Result{
		Context:   "[1] Funding memo\nAcme raised $40M.",
		Citations: []model.Citation{{DocumentID: "d1", Title: "Funding memo"}},
	}}

	uc := NewBuilder(s, newReconciler(), WithKB(k)).
		GetUnifiedContext(context.Background(), c.ID, "Acme", "", nil)

	assert.Equal(t, c.ID, uc.EntityID)
	assert.Equal(t, now, uc.GeneratedAt)
	assert.Equal(t, 2, uc.KBSourceCount)
	assert.Equal(t, 1, uc.LiveSourceCount)
	assert.Equal(t, 3, uc.TotalSources)

	rev := uc.Fields["revenue"]
	require.NotNil(t, rev)
	require.NotNil(t, rev.BestValue)
	assert.Equal(t, "$10M", *rev.BestValue)
	assert.Equal(t, model.MethodAuthority, rev.Method)
	assert.NotEmpty(t, rev.Conflicts)
	assert.Equal(t, []string{"revenue"}, uc.ConflictsSummary)

	_, hasTagline := uc.Fields["tagline"]
	assert.False(t, hasTagline)

	assert.Equal(t, "[1] Funding memo\nAcme raised $40M.", uc.KBContext)
	require.Len(t, uc.KBCitations, 1)
	assert.Equal(t, "Acme competitive overview", k.query)
	assert.Equal(t, c.ID, k.filters[kb.FilterEntityID])
	assert.Equal(t, "Acme", k.filters[kb.FilterEntityName])

	assert.Equal(t, map[string]string{"revenue": "$20M", "ceo": "Jane Doe"}, uc.LiveSnapshot)

	require.NotNil(t, uc.Freshness.KB.Oldest)
	assert.True(t, day(2025, 6, 1).Equal(*uc.Freshness.KB.Oldest))
	assert.True(t, day(2026, 2, 1).Equal(*uc.Freshness.KB.Newest))
	require.NotNil(t, uc.Freshness.Live.Newest)
	assert.True(t, day(2026, 2, 20).Equal(*uc.Freshness.Live.Newest))
	assert.Equal(t, []string{"ceo"}, uc.Freshness.StaleFields)
}

func TestGetUnifiedContext_FieldFilter(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)

	uc := NewBuilder(s, newReconciler()).
		GetUnifiedContext(context.Background(), c.ID, "Acme", "ceo?", []string{"ceo"})

	assert.Len(t, uc.Fields, 1)
	assert.Contains(t, uc.Fields, "ceo")
	assert.Equal(t, 1, uc.TotalSources)
	assert.Equal(t, map[string]string{"ceo": "Jane Doe"}, uc.LiveSnapshot)
	assert.Empty(t, uc.ConflictsSummary)
	assert.Empty(t, uc.KBContext)
	assert.NotNil(t, uc.KBCitations)
}

func TestGetUnifiedContext_ProvidersAddLiveRecords(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)
	reg := provider.NewRegistry()
	reg.Register(&stubProvider{fields: map[string]string{"employee_count": "250"}})

	uc := NewBuilder(s, newReconciler(), WithProviders(reg)).
		GetUnifiedContext(context.Background(), c.ID, "Acme", "", []string{"employee_count"})

	emp := uc.Fields["employee_count"]
	require.NotNil(t, emp)
	assert.Equal(t, "250", *emp.BestValue)
	assert.Equal(t, model.SourceClientProvided, emp.BestSource.SourceType)
	assert.Equal(t, 1, uc.LiveSourceCount)
}

type brokenStore struct{}

func (brokenStore) ListKBExtractions(context.Context, string) ([]model.SourceRecord, error) {
	return nil, errors.New("db down")
}

func (brokenStore) ListDataSources(context.Context, string) ([]model.DataSourceRow, error) {
	return nil, errors.New("db down")
}

func (brokenStore) GetFieldValues(context.Context, string) (map[string]string, error) {
	return nil, errors.New("db down")
}

func TestGetUnifiedContext_DegradesToEmpty(t *testing.T) {
	k := &fakeKB{res: &kb.Result{}, err: errors.New("kb down")}

	uc := NewBuilder(brokenStore{}, newReconciler(), WithKB(k)).
		GetUnifiedContext(context.Background(), "e1", "Acme", "pricing", nil)

	require.NotNil(t, uc)
	assert.Empty(t, uc.Fields)
	assert.Empty(t, uc.KBContext)
	assert.NotNil(t, uc.KBCitations)
	assert.Empty(t, uc.LiveSnapshot)
	assert.Equal(t, 0, uc.TotalSources)
	assert.Equal(t, "pricing", k.query)
	assert.NotNil(t, uc.Freshness.StaleFields)
}
