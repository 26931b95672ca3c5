package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateConfig locates the knowledge-chunk collection.
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string
	Class  string
	Limit  int
}

// WeaviateProvider runs nearText queries over knowledge chunks.
type WeaviateProvider struct {
	client *weaviate.Client
	class  string
	limit  int
}

// NewWeaviateProvider connects to Weaviate. Host may carry a scheme prefix.
func NewWeaviateProvider(cfg WeaviateConfig) (*WeaviateProvider, error) {
	if cfg.Host == "" {
		return nil, eris.New("kb: weaviate host is required")
	}
	wc := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	switch {
	case strings.HasPrefix(cfg.Host, "https://"):
		wc.Scheme, wc.Host = "https", strings.TrimPrefix(cfg.Host, "https://")
	case strings.HasPrefix(cfg.Host, "http://"):
		wc.Scheme, wc.Host = "http", strings.TrimPrefix(cfg.Host, "http://")
	}
	if wc.Scheme == "" {
		wc.Scheme = "http"
	}
	if cfg.APIKey != "" {
		wc.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	client, err := weaviate.NewClient(wc)
	if err != nil {
		return nil, eris.Wrap(err, "kb: create weaviate client")
	}

	class := cfg.Class
	if class == "" {
		class = "KnowledgeChunk"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &WeaviateProvider{client: client, class: class, limit: limit}, nil
}

func (w *WeaviateProvider) Name() string { return "weaviate" }

// Query returns the closest chunks to text, restricted to the entity when
// an entity_id filter is given.
func (w *WeaviateProvider) Query(ctx context.Context, text string, f map[string]string) (*Result, error) {
	concepts := []string{text}
	if name := f[FilterEntityName]; name != "" && !strings.Contains(text, name) {
		concepts = append(concepts, name)
	}

	q := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "title"},
			graphql.Field{Name: "url"},
			graphql.Field{Name: "documentId"},
			graphql.Field{Name: "chunkId"},
			graphql.Field{Name: "_additional { certainty }"},
		).
		WithNearText(w.client.GraphQL().NearTextArgBuilder().WithConcepts(concepts)).
		WithLimit(w.limit)
	if id := f[FilterEntityID]; id != "" {
		q = q.WithWhere(filters.Where().
			WithPath([]string{"entityId"}).
			WithOperator(filters.Equal).
			WithValueString(id))
	}

	resp, err := q.Do(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "kb: weaviate query")
	}
	if len(resp.Errors) > 0 {
		return nil, eris.Errorf("kb: weaviate query: %s", resp.Errors[0].Message)
	}
	return chunksToResult(resp, w.class), nil
}

func chunksToResult(resp *models.GraphQLResponse, class string) *Result {
	res := &Result{}
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return res
	}
	objects, ok := get[class].([]interface{})
	if !ok {
		return res
	}

	var b strings.Builder
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		content := strings.TrimSpace(str(m, "content"))
		if content == "" {
			continue
		}
		res.ChunksUsed++
		title := str(m, "title")
		if title == "" {
			title = fmt.Sprintf("Chunk %d", res.ChunksUsed)
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", res.ChunksUsed, title, content)

		var certainty float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			certainty, _ = add["certainty"].(float64)
		}
		res.Citations = append(res.Citations, citation(title, str(m, "url"), str(m, "documentId"), str(m, "chunkId"), certainty))
	}
	res.Context = strings.TrimSpace(b.String())
	return res
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
