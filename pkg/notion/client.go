// Package notion reads competitor databases through the Notion API.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond is Notion's average request limit per integration.
const DefaultRequestsPerSecond = 3

// Client is the read-only part of the Notion API the providers use.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type apiClient struct {
	dbs     notionapi.DatabaseService
	limiter *rate.Limiter // nil = unthrottled
}

// NewClient authenticates with an integration token. Queries are throttled
// to rps requests per second; rps <= 0 disables throttling.
func NewClient(token string, rps float64) Client {
	c := &apiClient{dbs: notionapi.NewClient(notionapi.Token(token)).Database}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return c
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "notion: throttle query %s", dbID)
		}
	}
	resp, err := c.dbs.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}
