package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/reconcile"
	"github.com/sells-group/competitor-intel/internal/search"
	"github.com/sells-group/competitor-intel/internal/store"
	"github.com/sells-group/competitor-intel/internal/unified"
	"github.com/sells-group/competitor-intel/internal/urlcheck"
	"github.com/sells-group/competitor-intel/internal/verify"
)

type notFoundTransport struct{}

func (notFoundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody, Header: http.Header{}, Request: req}, nil
}

type staticSearch struct{ text string }

func (staticSearch) Name() string { return "static" }

func (s staticSearch) Ask(context.Context, string) (*search.Answer, error) {
	return &search.Answer{Text: s.text, Provider: "static"}, nil
}

type env struct {
	srv   *httptest.Server
	store *store.SQLiteStore
	comp  *model.Competitor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	c := &model.Competitor{Name: "Acme", Website: "https://acme.io"}
	require.NoError(t, s.UpsertCompetitor(context.Background(), c))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rec := reconcile.New()
	noSleep := func(context.Context, time.Duration) error { return nil }

	srv := New(Deps{
		Store:      s,
		Reconciler: rec,
		Unified:    unified.NewBuilder(s, rec, unified.WithMetrics(m)),
		Discoverer: discovery.New(s,
			discovery.WithValidator(urlcheck.NewValidator(urlcheck.WithHTTPClient(&http.Client{Transport: notFoundTransport{}}))),
			discovery.WithMetrics(m),
			discovery.WithSleep(noSleep),
		),
		Verifier: verify.New(s, staticSearch{text: `{"status":"correct"}`},
			verify.WithMetrics(m),
			verify.WithSleep(noSleep),
		),
		Gatherer: reg,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &env{srv: ts, store: s, comp: c}
}

func (e *env) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestReconcileEndpoint(t *testing.T) {
	e := newEnv(t)
	body := `{"sources":[
		{"value":"520","source_type":"website_scrape","extracted_at":"` + time.Now().UTC().Format(time.RFC3339) + `"},
		{"value":"$5M","source_type":"regulatory_filing"}
	]}`
	resp, raw := e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/fields/employee_count/reconcile", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var res model.ReconciliationResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "employee_count", res.Field)
	require.NotNil(t, res.BestValue)
	assert.Equal(t, "$5M", *res.BestValue)
	assert.Equal(t, model.MethodAuthority, res.Method)
}

func TestReconcileEndpoint_Validation(t *testing.T) {
	e := newEnv(t)
	path := "/v1/competitors/" + e.comp.ID + "/fields/revenue/reconcile"

	resp, _ := e.do(t, http.MethodPost, path, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, path, `{"sources":[{"value":"1","source_type":"news_article","confidence":150}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, path, `{"sources":[{"field":"ceo","value":"1","source_type":"news_article"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcileEndpoint_UnknownSourceType(t *testing.T) {
	e := newEnv(t)
	path := "/v1/competitors/" + e.comp.ID + "/fields/revenue/reconcile"

	tests := []struct {
		name string
		body string
	}{
		{"missing", `{"sources":[{"value":"$1M"}]}`},
		{"empty", `{"sources":[{"value":"$1M","source_type":""}]}`},
		{"unrecognized", `{"sources":[{"value":"$1M","source_type":"press_release"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := e.do(t, http.MethodPost, path, tt.body)
			require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

			var res model.ReconciliationResult
			require.NoError(t, json.Unmarshal(raw, &res))
			require.NotNil(t, res.BestValue)
			assert.Equal(t, "$1M", *res.BestValue)
			require.NotNil(t, res.BestSource)
			assert.Equal(t, model.SourceUnknown, res.BestSource.SourceType)
		})
	}
}

func TestContextEndpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.SetFieldValue(ctx, e.comp.ID, "ceo", "Jane Doe"))
	_, err := e.store.InsertKBExtractions(ctx, e.comp.ID, []model.SourceRecord{
		{Field: "ceo", Value: "Jane Doe", SourceType: model.SourceKBExtraction},
		{Field: "revenue", Value: "$10M", SourceType: model.SourceAnalystReport},
	})
	require.NoError(t, err)

	resp, raw := e.do(t, http.MethodGet, "/v1/competitors/"+e.comp.ID+"/context?fields=ceo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uc model.UnifiedContext
	require.NoError(t, json.Unmarshal(raw, &uc))
	assert.Equal(t, "Acme", uc.EntityName)
	assert.Len(t, uc.Fields, 1)
	assert.Equal(t, "Jane Doe", uc.LiveSnapshot["ceo"])

	resp, _ = e.do(t, http.MethodGet, "/v1/competitors/nope/context", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDiscoverEndpoint(t *testing.T) {
	e := newEnv(t)

	resp, raw := e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/discover", `{"priority":"P0","max_fields":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var res model.DiscoveryResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, 7, res.TotalFields)
	assert.Equal(t, 2, res.FieldsProcessed)
	assert.Zero(t, res.SourcesFound)

	resp, _ = e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/discover", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/discover", `{"priority":"P9"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/discover", `{"max_fields":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyAndChangesEndpoints(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SetFieldValue(context.Background(), e.comp.ID, "ceo", "Jane Doe"))

	resp, raw := e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/verify", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var sum model.VerificationSummary
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, 1, sum.FieldsChecked)
	assert.Equal(t, 1, sum.FieldsCorrect)

	resp, raw = e.do(t, http.MethodGet, "/v1/competitors/"+e.comp.ID+"/changes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestCoverageAndMetrics(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SetFieldValue(context.Background(), e.comp.ID, "ceo", "Jane Doe"))
	e.do(t, http.MethodPost, "/v1/competitors/"+e.comp.ID+"/verify", "")

	resp, raw := e.do(t, http.MethodGet, "/v1/coverage", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep model.CoverageReport
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, 1, rep.Competitors)
	assert.Equal(t, len(model.Registry), rep.TotalFields)

	resp, raw = e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `competitor_intel_verify_fields_total{status="correct"} 1`)
}

func TestNotConfigured(t *testing.T) {
	s := New(Deps{})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/competitors/x/verify", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/coverage", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORS(t *testing.T) {
	s := New(Deps{}, WithAllowedOrigins([]string{"https://app.example"}))
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
