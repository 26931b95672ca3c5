package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/store"
)

type mockStore struct {
	competitors []model.Competitor
	values      map[string]map[string]string
	changes     map[string][]model.ChangeLogEntry
	err         error
}

func (m *mockStore) ListCompetitors(context.Context) ([]model.Competitor, error) {
	return m.competitors, m.err
}

func (m *mockStore) GetFieldValues(_ context.Context, id string) (map[string]string, error) {
	return m.values[id], nil
}

func (m *mockStore) ListChangeLog(_ context.Context, id string) ([]model.ChangeLogEntry, error) {
	return m.changes[id], nil
}

type staticCoverage struct {
	pct float64
	err error
}

func (s staticCoverage) Coverage(context.Context) (*model.CoverageReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.CoverageReport{CoveragePercent: s.pct}, nil
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{}, nil, nil)
	c.now = func() time.Time { return fixedNow }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Competitors)
	assert.Equal(t, 0, snap.Corrections)
	assert.Zero(t, snap.UnverifiableRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_CorrectionsInWindow(t *testing.T) {
	st := &mockStore{
		competitors: []model.Competitor{{ID: "c1", Name: "Acme"}, {ID: "c2", Name: "Globex"}},
		changes: map[string][]model.ChangeLogEntry{
			"c1": {
				{FieldName: "ceo", Severity: model.SeverityHigh, DetectedAt: fixedNow.Add(-2 * time.Hour)},
				{FieldName: "revenue", Severity: model.SeverityMedium, DetectedAt: fixedNow.Add(-30 * time.Hour)},
			},
			"c2": {
				{FieldName: "g2_rating", Severity: model.SeverityLow, DetectedAt: fixedNow.Add(-time.Hour)},
			},
		},
	}
	c := NewCollector(st, nil, nil)
	c.now = func() time.Time { return fixedNow }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Competitors)
	assert.Equal(t, 2, snap.Corrections)
	assert.Equal(t, 1, snap.HighSeverity)
	assert.Equal(t, 2, snap.CorrectedEntities)
}

func TestCollector_UnverifiableRate(t *testing.T) {
	st := &mockStore{
		competitors: []model.Competitor{{ID: "c1"}},
		values: map[string]map[string]string{
			"c1": {
				"ceo":            "Jane Doe",
				"revenue":        model.Unverifiable,
				"base_price":     model.Unverifiable,
				"customer_count": "1200",
				"valuation":      model.Unverifiable, // not critical
			},
		},
	}
	c := NewCollector(st, nil, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.CriticalFilled)
	assert.Equal(t, 2, snap.CriticalUnverifiable)
	assert.InDelta(t, 0.5, snap.UnverifiableRate, 0.0001)
}

func TestCollector_CoverageAndSpend(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SearchSpend("perplexity", 0.25)
	m.SearchSpend("gemini", 0.5)

	c := NewCollector(&mockStore{}, staticCoverage{pct: 42.5}, reg)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.InDelta(t, 42.5, snap.CoveragePercent, 0.0001)
	assert.InDelta(t, 0.75, snap.SearchSpendUSD, 0.0001)
}

func TestCollector_Errors(t *testing.T) {
	_, err := NewCollector(&mockStore{err: errors.New("db down")}, nil, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list competitors")

	_, err = NewCollector(&mockStore{}, staticCoverage{err: errors.New("boom")}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coverage")
}

func TestCollector_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	comp := &model.Competitor{Name: "Acme", Website: "https://acme.io"}
	require.NoError(t, st.UpsertCompetitor(ctx, comp))
	require.NoError(t, st.SetFieldValue(ctx, comp.ID, "ceo", model.Unverifiable))
	require.NoError(t, st.AppendChangeLog(ctx, &model.ChangeLogEntry{
		EntityID:   comp.ID,
		EntityName: comp.Name,
		FieldName:  "ceo",
		NewValue:   model.Unverifiable,
		Source:     "verification",
		Severity:   model.SeverityHigh,
		DetectedAt: time.Now().UTC().Add(-time.Hour),
	}))

	snap, err := NewCollector(st, nil, nil).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Competitors)
	assert.Equal(t, 1, snap.Corrections)
	assert.Equal(t, 1, snap.HighSeverity)
	assert.Equal(t, 1, snap.CriticalFilled)
	assert.Equal(t, 1, snap.CriticalUnverifiable)
}
