package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/model"
)

// ExtractionLister reads stored knowledge-base extractions.
type ExtractionLister interface {
	ListKBExtractions(ctx context.Context, entityID string) ([]model.SourceRecord, error)
}

// StoreProvider renders stored KB extractions as context. It is the
// fallback when no vector store is configured or it returns nothing.
type StoreProvider struct {
	store ExtractionLister
	limit int
}

// NewStoreProvider renders at most limit extractions (0 means all).
func NewStoreProvider(store ExtractionLister, limit int) *StoreProvider {
	return &StoreProvider{store: store, limit: limit}
}

func (s *StoreProvider) Name() string { return "store" }

// Query lists the entity's extractions, ranking those whose field or value
// mention a query term first. Without an entity_id filter it returns nothing.
func (s *StoreProvider) Query(ctx context.Context, text string, f map[string]string) (*Result, error) {
	id := f[FilterEntityID]
	if id == "" {
		return &Result{}, nil
	}
	recs, err := s.store.ListKBExtractions(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "kb: list extractions")
	}

	terms := strings.Fields(strings.ToLower(text))
	sort.SliceStable(recs, func(i, j int) bool {
		return matches(recs[i], terms) > matches(recs[j], terms)
	})
	if s.limit > 0 && len(recs) > s.limit {
		recs = recs[:s.limit]
	}

	res := &Result{}
	var b strings.Builder
	for _, r := range recs {
		if strings.TrimSpace(r.Value) == "" {
			continue
		}
		res.ChunksUsed++
		fmt.Fprintf(&b, "- %s: %s", r.Field, r.Value)
		if r.SourceName != "" {
			fmt.Fprintf(&b, " (%s", r.SourceName)
			if at := r.AsOf(); at != nil {
				fmt.Fprintf(&b, ", %s", at.Format("2006-01-02"))
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
		if r.DocumentID != "" || r.ChunkID != "" || r.SourceURL != "" {
			res.Citations = append(res.Citations, citation(r.SourceName, r.SourceURL, r.DocumentID, r.ChunkID, 0))
		}
	}
	res.Context = strings.TrimSpace(b.String())
	return res, nil
}

func matches(r model.SourceRecord, terms []string) int {
	hay := strings.ToLower(r.Field + " " + strings.ReplaceAll(r.Field, "_", " ") + " " + r.Value)
	n := 0
	for _, t := range terms {
		if strings.Contains(hay, t) {
			n++
		}
	}
	return n
}

func citation(title, url, docID, chunkID string, score float64) model.Citation {
	return model.Citation{
		DocumentID: docID,
		ChunkID:    chunkID,
		Title:      title,
		URL:        url,
		Score:      score,
	}
}
