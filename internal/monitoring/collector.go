package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/model"
)

// spendMetric is the search spend counter family summed into snapshots.
const spendMetric = "competitor_intel_search_spend_usd_total"

// MetricsSnapshot holds a point-in-time view of data health.
type MetricsSnapshot struct {
	Competitors int `json:"competitors"`

	// Source coverage across all fields.
	CoveragePercent float64 `json:"coverage_percent"`

	// Corrections written by verification within the lookback window.
	Corrections       int `json:"corrections"`
	HighSeverity      int `json:"high_severity"`
	CorrectedEntities int `json:"corrected_entities"`

	// Critical fields with a live value, and how many of those are "N/A".
	CriticalFilled       int     `json:"critical_filled"`
	CriticalUnverifiable int     `json:"critical_unverifiable"`
	UnverifiableRate     float64 `json:"unverifiable_rate"`

	// SearchSpendUSD is cumulative for the running process.
	SearchSpendUSD float64 `json:"search_spend_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Store is the read access the collector needs.
type Store interface {
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	GetFieldValues(ctx context.Context, entityID string) (map[string]string, error)
	ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error)
}

// CoverageReporter reports source coverage.
type CoverageReporter interface {
	Coverage(ctx context.Context) (*model.CoverageReport, error)
}

// Collector gathers health data from the store, the coverage report and
// the metrics registry. Coverage and spend are optional.
type Collector struct {
	store    Store
	coverage CoverageReporter
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewCollector creates a new health collector.
func NewCollector(st Store, cov CoverageReporter, g prometheus.Gatherer) *Collector {
	return &Collector{store: st, coverage: cov, gatherer: g, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	comps, err := c.store.ListCompetitors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list competitors")
	}
	snap.Competitors = len(comps)

	for _, comp := range comps {
		changes, err := c.store.ListChangeLog(ctx, comp.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list changes %s", comp.ID)
		}
		corrected := false
		for _, e := range changes {
			if e.DetectedAt.Before(cutoff) {
				continue
			}
			snap.Corrections++
			corrected = true
			if e.Severity == model.SeverityHigh {
				snap.HighSeverity++
			}
		}
		if corrected {
			snap.CorrectedEntities++
		}

		values, err := c.store.GetFieldValues(ctx, comp.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: field values %s", comp.ID)
		}
		for _, d := range model.Critical() {
			v := values[string(d.Name)]
			if v == "" {
				continue
			}
			snap.CriticalFilled++
			if v == model.Unverifiable {
				snap.CriticalUnverifiable++
			}
		}
	}
	if snap.CriticalFilled > 0 {
		snap.UnverifiableRate = float64(snap.CriticalUnverifiable) / float64(snap.CriticalFilled)
	}

	if c.coverage != nil {
		rep, err := c.coverage.Coverage(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: coverage")
		}
		snap.CoveragePercent = rep.CoveragePercent
	}

	if c.gatherer != nil {
		spend, err := sumCounter(c.gatherer, spendMetric)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: gather spend")
		}
		snap.SearchSpendUSD = spend
	}
	return snap, nil
}

func sumCounter(g prometheus.Gatherer, name string) (float64, error) {
	families, err := g.Gather()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total, nil
}
