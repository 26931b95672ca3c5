package verify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/search"
	"github.com/sells-group/competitor-intel/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type reply struct {
	answer *search.Answer
	err    error
}

// fakeSearch answers by a phrase contained in the prompt.
type fakeSearch struct {
	mu      sync.Mutex
	replies map[string]reply
	prompts []string
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Ask(_ context.Context, prompt string) (*search.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	for phrase, r := range f.replies {
		if strings.Contains(prompt, phrase) {
			return r.answer, r.err
		}
	}
	return &search.Answer{Text: `{"status":"unverifiable"}`}, nil
}

func text(s string) reply { return reply{answer: &search.Answer{Text: s, Provider: "fake"}} }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "verify.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.SQLiteStore) *model.Competitor {
	t.Helper()
	ctx := context.Background()
	c := &model.Competitor{Name: "Acme", Website: "https://acme.io"}
	require.NoError(t, s.UpsertCompetitor(ctx, c))
	for field, value := range map[string]string{
		"revenue":        "$12M",
		"funding_total":  "$40M",
		"employee_count": "10 employees",
		"ceo":            "Jane Doe",
		"pricing_model":  "per seat",
		"base_price":     model.Unverifiable,
		"headquarters":   "Austin, TX",
		"tagline":        "Widgets for everyone",
	} {
		require.NoError(t, s.SetFieldValue(ctx, c.ID, field, value))
	}
	require.NoError(t, s.UpsertDataSource(ctx, &model.DataSourceRow{
		EntityID: c.ID, FieldName: "employee_count", CurrentValue: "10 employees",
		SourceType: model.SourceWebsiteScrape, SourceURL: "https://acme.io/about",
	}))
	return c
}

func newSearch() *fakeSearch {
	return &fakeSearch{replies: map[string]reply{
		"annual revenue":       text("I could not find anything reliable."),
		"total funding raised": text(`{"status":"wrong","verified_value":"$40,000,000","source_url":"https://techcrunch.com/acme"}`),
		"employee count": text("Here is what I found:\n```json\n" +
			`{"status": "wrong", "verified_value": "1,000 employees", "source_url": "https://www.linkedin.com/company/acme", "source_name": "LinkedIn", "evidence": "1,001-5,000 employees"}` +
			"\n```"),
		"chief executive officer": text("```json\n{\"status\": \"Correct\", \"source_url\": \"https://www.sec.gov/acme-def14a\", \"evidence\": \"Jane Doe, CEO\"}\n```"),
		"pricing model":           text(`{"status":"wrong","verified_value":""}`),
		"headquarters location":   {err: errors.New("search: all engines failed")},
	}}
}

func TestVerifyAndCorrect(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)
	ctx := context.Background()
	fs := newSearch()
	sleeps := 0

	v := New(s, fs,
		WithNow(func() time.Time { return fixedNow }),
		WithSleep(func(context.Context, time.Duration) error { sleeps++; return nil }),
	)
	sum := v.VerifyAndCorrect(ctx, c.ID)

	require.False(t, sum.Aborted, sum.Errors)
	assert.Equal(t, 6, sum.FieldsChecked)
	assert.Equal(t, 2, sum.FieldsCorrect)
	assert.Equal(t, 1, sum.FieldsCorrected)
	assert.Equal(t, 2, sum.FieldsUnverifiable)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "headquarters search")
	assert.Len(t, sum.Details, 5)
	assert.Equal(t, 5, sleeps)
	assert.Len(t, fs.prompts, 6)

	live, err := s.GetFieldValues(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "1,000 employees", live["employee_count"])
	assert.Equal(t, model.Unverifiable, live["revenue"])
	assert.Equal(t, model.Unverifiable, live["pricing_model"])
	assert.Equal(t, "Jane Doe", live["ceo"])
	assert.Equal(t, "$40M", live["funding_total"])
	assert.Equal(t, "Austin, TX", live["headquarters"])

	changes, err := s.ListChangeLog(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "employee_count", changes[0].FieldName)
	assert.Equal(t, "10 employees", changes[0].PreviousValue)
	assert.Equal(t, "1,000 employees", changes[0].NewValue)
	assert.Equal(t, model.SeverityMedium, changes[0].Severity)
	assert.Equal(t, "Acme", changes[0].EntityName)
	assert.Equal(t, "https://www.linkedin.com/company/acme", changes[0].Source)

	emp, err := s.GetDataSource(ctx, c.ID, "employee_count")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "10 employees", emp.PreviousValue)
	assert.Equal(t, "1,000 employees", emp.CurrentValue)
	assert.True(t, emp.IsVerified)
	assert.Equal(t, VerifiedBy, emp.VerifiedBy)
	assert.Equal(t, model.SourceLinkedIn, emp.SourceType)
	assert.Equal(t, "LinkedIn", emp.SourceName)

	ceo, err := s.GetDataSource(ctx, c.ID, "ceo")
	require.NoError(t, err)
	require.NotNil(t, ceo)
	assert.True(t, ceo.IsVerified)
	assert.Equal(t, "Jane Doe", ceo.CurrentValue)
	assert.Empty(t, ceo.PreviousValue)
	assert.Equal(t, model.SourceRegulatoryFiling, ceo.SourceType)
	assert.InDelta(t, 100, ceo.ConfidenceScore, 1e-9)
	assert.Equal(t, model.ConfidenceHigh, ceo.ConfidenceLevel)
	require.NotNil(t, ceo.VerificationDate)
	assert.True(t, fixedNow.Equal(*ceo.VerificationDate))

	rev, err := s.GetDataSource(ctx, c.ID, "revenue")
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, "$12M", rev.PreviousValue)
	assert.Equal(t, model.Unverifiable, rev.CurrentValue)
	assert.False(t, rev.IsVerified)

	hq, err := s.GetDataSource(ctx, c.ID, "headquarters")
	require.NoError(t, err)
	assert.Nil(t, hq)

	for _, d := range sum.Details {
		if d.Field == "funding_total" {
			assert.Equal(t, model.StatusCorrect, d.Status)
			assert.Empty(t, d.NewValue)
		}
		if d.Field == "pricing_model" {
			assert.Equal(t, model.StatusUnverifiable, d.Status)
			assert.Equal(t, model.Unverifiable, d.NewValue)
		}
	}
}

func TestVerifyAndCorrect_SecondRunSkipsSentinels(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)
	v := New(s, newSearch(), WithInterCallDelay(0))

	v.VerifyAndCorrect(context.Background(), c.ID)
	sum := v.VerifyAndCorrect(context.Background(), c.ID)
	assert.Equal(t, 4, sum.FieldsChecked)

	changes, err := s.ListChangeLog(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

type failingStore struct {
	*store.SQLiteStore
}

func (failingStore) ApplyCorrection(context.Context, *model.Correction) error {
	return errors.New("disk I/O error")
}

func TestVerifyAndCorrect_StoreFailureAborts(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)
	v := New(failingStore{s}, newSearch(), WithInterCallDelay(0))

	sum := v.VerifyAndCorrect(context.Background(), c.ID)
	assert.True(t, sum.Aborted)
	assert.Equal(t, 1, sum.FieldsChecked)
	assert.Empty(t, sum.Details)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "disk I/O error")
}

func TestVerifyAndCorrect_NoSearch(t *testing.T) {
	s := newTestStore(t)
	c := seed(t, s)

	sum := New(s, nil).VerifyAndCorrect(context.Background(), c.ID)
	assert.False(t, sum.Aborted)
	assert.Zero(t, sum.FieldsChecked)
	assert.Len(t, sum.Errors, 1)
}

func TestVerifyAndCorrect_UnknownCompetitor(t *testing.T) {
	sum := New(newTestStore(t), newSearch()).VerifyAndCorrect(context.Background(), "missing")
	assert.True(t, sum.Aborted)
}

func TestVerifyAll(t *testing.T) {
	s := newTestStore(t)
	a := seed(t, s)
	b := &model.Competitor{Name: "Beta"}
	require.NoError(t, s.UpsertCompetitor(context.Background(), b))

	out, err := New(s, newSearch(), WithInterCallDelay(0), WithConcurrency(2)).
		VerifyAll(context.Background(), []string{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 6, out[0].FieldsChecked)
	assert.Equal(t, b.ID, out[1].EntityID)
	assert.Zero(t, out[1].FieldsChecked)
}

func TestPrompt(t *testing.T) {
	d, _ := model.Lookup("employee_count")
	p := Prompt(&model.Competitor{Name: "Acme", Website: "https://acme.io"}, d, "10 employees")
	assert.Contains(t, p, `employee count of Acme (https://acme.io) as: "10 employees"`)
	assert.Contains(t, p, "rounding")
	assert.Contains(t, p, `"status"`)
}
