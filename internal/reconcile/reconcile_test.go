package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/scoring"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := fixedNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func newTestReconciler(opts ...Option) *Reconciler {
	opts = append([]Option{WithScorer(scoring.NewScorer(scoring.WithNow(func() time.Time { return fixedNow })))}, opts...)
	return New(opts...)
}

func TestReconcileField_NoRecords(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()
	for _, recs := range [][]model.SourceRecord{
		nil,
		{{Field: "ceo", Value: "   ", SourceType: model.SourceKBExtraction}},
	} {
		res := r.ReconcileField("c1", "ceo", recs)
		assert.Nil(t, res.BestValue)
		assert.Zero(t, res.ConfidenceScore)
		assert.Equal(t, model.MethodNone, res.Method)
		assert.True(t, res.NeedsReview)
		assert.Empty(t, res.Conflicts)
		assert.Empty(t, res.SourcesUsed)
	}
}

func TestReconcileField_FresherLiveBeatsStaleKB(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()
	res := r.ReconcileField("c1", "employee_count", []model.SourceRecord{
		{Field: "employee_count", Value: "500", SourceType: model.SourceKBExtraction, Origin: model.OriginKB, DataAsOf: daysAgo(200)},
		{Field: "employee_count", Value: "520", SourceType: model.SourceWebsiteScrape, Origin: model.OriginLive, DataAsOf: daysAgo(5)},
	})

	require.NotNil(t, res.BestValue)
	assert.Equal(t, "520", *res.BestValue)
	assert.InDelta(t, 50, res.ConfidenceScore, 1e-9)
	assert.Equal(t, model.ConfidenceModerate, res.ConfidenceLevel)
	assert.Equal(t, model.MethodFreshness, res.Method)
	assert.Empty(t, res.Conflicts)
	assert.False(t, res.NeedsReview)
	require.Len(t, res.SourcesUsed, 2)
	assert.Equal(t, model.OriginLive, res.SourcesUsed[0].Origin)
}

func TestReconcileField_NumericConflict(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()
	res := r.ReconcileField("c1", "revenue", []model.SourceRecord{
		{Field: "revenue", Value: "$2M", SourceType: model.SourceManualVerified},
		{Field: "revenue", Value: "$5M", SourceType: model.SourceAnalystReport},
	})

	require.NotNil(t, res.BestValue)
	assert.Equal(t, "$5M", *res.BestValue)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, model.DifferenceNumeric, res.Conflicts[0].DifferenceType)
	assert.InDelta(t, 0.6, res.Conflicts[0].Difference, 1e-9)
	assert.Equal(t, "$2M", res.Conflicts[0].Rival.Value)
	assert.True(t, res.NeedsReview)
}

func TestReconcileField_WeakRivalIgnored(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()
	res := r.ReconcileField("c1", "revenue", []model.SourceRecord{
		{Field: "revenue", Value: "$2M", SourceType: model.SourceAnalystReport},
		{Field: "revenue", Value: "$9M", SourceType: model.SourceNewsArticle},
	})
	assert.Empty(t, res.Conflicts)
	assert.False(t, res.NeedsReview)
}

func TestReconcileField_Methods(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()

	t.Run("authority", func(t *testing.T) {
		res := r.ReconcileField("c1", "revenue", []model.SourceRecord{
			{Field: "revenue", Value: "$10M", SourceType: model.SourceRegulatoryFiling},
			{Field: "revenue", Value: "$9M", SourceType: model.SourceKBExtraction},
		})
		assert.Equal(t, model.MethodAuthority, res.Method)
	})

	t.Run("manual", func(t *testing.T) {
		res := r.ReconcileField("c1", "ceo", []model.SourceRecord{
			{Field: "ceo", Value: "Jane Doe", SourceType: model.SourceManualVerified, IsVerified: true},
			{Field: "ceo", Value: "John Roe", SourceType: model.SourceNewsArticle},
		})
		assert.Equal(t, model.MethodManual, res.Method)
	})

	t.Run("agreement", func(t *testing.T) {
		res := r.ReconcileField("c1", "headquarters", []model.SourceRecord{
			{Field: "headquarters", Value: "Austin, TX", SourceType: model.SourceKBExtraction},
			{Field: "headquarters", Value: "austin, tx", SourceType: model.SourceAutoDiscovery},
			{Field: "headquarters", Value: "Austin,  TX", SourceType: model.SourceNewsArticle},
			{Field: "headquarters", Value: "Denver, CO", SourceType: model.SourceSocialMedia},
		})
		assert.Equal(t, model.MethodAgreement, res.Method)
	})

	t.Run("single source is freshness", func(t *testing.T) {
		res := r.ReconcileField("c1", "tagline", []model.SourceRecord{
			{Field: "tagline", Value: "Ship faster", SourceType: model.SourceWebsiteScrape},
		})
		assert.Equal(t, model.MethodFreshness, res.Method)
	})
}

func TestReconcileField_SourcesUsedCapped(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()
	var recs []model.SourceRecord
	for i := range 8 {
		recs = append(recs, model.SourceRecord{
			Field: "customer_count", Value: fmt.Sprintf("%d", 1000+i), SourceType: model.SourceKBExtraction,
		})
	}
	res := r.ReconcileField("c1", "customer_count", recs)
	assert.Len(t, res.SourcesUsed, 5)
}

func TestReconcileField_MergedPolicy(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(WithPolicy(Merged{}))
	res := r.ReconcileField("c1", "ceo", []model.SourceRecord{
		{Field: "ceo", Value: "Jane Doe", SourceType: model.SourceAnalystReport},
		{Field: "ceo", Value: "John Roe", SourceType: model.SourceManualVerified},
		{Field: "ceo", Value: "Ann Poe", SourceType: model.SourceKBExtraction},
	})
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, 2, res.Conflicts[0].RivalCount)
	assert.Equal(t, "John Roe", res.Conflicts[0].Rival.Value)
}

func TestReconcileEntity(t *testing.T) {
	t.Parallel()

	r := newTestReconciler()
	out := r.ReconcileEntity("c1", []model.SourceRecord{
		{Field: "ceo", Value: "Jane Doe", SourceType: model.SourceKBExtraction},
		{Field: "revenue", Value: "$2M", SourceType: model.SourceKBExtraction},
		{Field: "revenue", Value: "$2.1M", SourceType: model.SourceAutoDiscovery},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Jane Doe", *out["ceo"].BestValue)
	assert.Len(t, out["revenue"].SourcesUsed, 2)
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "merged", PolicyByName("merged").Name())
	assert.Equal(t, "pairwise", PolicyByName("").Name())
	assert.Equal(t, "pairwise", PolicyByName("bogus").Name())
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "reconcile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reconcile:
  numeric_threshold: 0.1
  stale_after_days: 30
`), 0o644))

	th, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, th.NumericThreshold, 1e-9)
	assert.Equal(t, 30, th.StaleAfterDays)
	assert.InDelta(t, 0.85, th.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.8, th.RivalCutoff, 1e-9)
	assert.Equal(t, 5, th.MaxSourcesUsed)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconcile:\n  rival_cutoff: 1.5\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
