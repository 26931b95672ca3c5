package discovery

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/competitor-intel/internal/model"
)

// DiscoverAll runs DiscoverSources for each entity with bounded
// parallelism. Results keep the order of entityIDs. An empty list means
// every competitor in the store.
func (d *Discoverer) DiscoverAll(ctx context.Context, entityIDs []string, opts Options) ([]*model.DiscoveryResult, error) {
	if len(entityIDs) == 0 {
		comps, err := d.store.ListCompetitors(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "discovery: list competitors")
		}
		for _, c := range comps {
			entityIDs = append(entityIDs, c.ID)
		}
	}

	results := make([]*model.DiscoveryResult, len(entityIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.concurrency, 1))
	for i, id := range entityIDs {
		g.Go(func() error {
			results[i] = d.DiscoverSources(gctx, id, opts)
			return nil
		})
	}
	_ = g.Wait()

	var found, aborted int
	for _, r := range results {
		found += r.SourcesFound
		if r.Aborted {
			aborted++
		}
	}
	zap.L().Info("discovery: batch complete",
		zap.Int("entities", len(entityIDs)),
		zap.Int("sources_found", found),
		zap.Int("aborted", aborted),
	)
	return results, nil
}
