package discovery

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/store"
)

// Coverage reports how many registry fields across all competitors carry a
// source URL, overall and per priority tier.
func (d *Discoverer) Coverage(ctx context.Context) (*model.CoverageReport, error) {
	comps, err := d.store.ListCompetitors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list competitors")
	}
	rows, err := d.store.ListDataSources(ctx, store.AllEntities)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list data sources")
	}

	known := make(map[string]struct{}, len(comps))
	for _, c := range comps {
		known[c.ID] = struct{}{}
	}

	rep := &model.CoverageReport{
		Competitors: len(comps),
		TotalFields: len(comps) * len(model.Registry),
		ByPriority:  make(map[string]model.TierCoverage),
	}
	for _, desc := range model.Registry {
		tc := rep.ByPriority[desc.Tier.String()]
		tc.Total += len(comps)
		rep.ByPriority[desc.Tier.String()] = tc
	}

	for _, row := range rows {
		if !row.HasSource() {
			continue
		}
		if _, ok := known[row.EntityID]; !ok {
			continue
		}
		desc, ok := model.Lookup(row.FieldName)
		if !ok {
			continue
		}
		rep.FieldsWithSources++
		tc := rep.ByPriority[desc.Tier.String()]
		tc.WithSources++
		rep.ByPriority[desc.Tier.String()] = tc
	}

	rep.CoveragePercent = percent(rep.FieldsWithSources, rep.TotalFields)
	for tier, tc := range rep.ByPriority {
		tc.Percent = percent(tc.WithSources, tc.Total)
		rep.ByPriority[tier] = tc
	}
	return rep, nil
}

// percent rounds to two decimals; an empty denominator is 0%.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}
