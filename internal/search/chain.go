package search

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/cost"
	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/resilience"
)

// errEmptyAnswer marks an engine reply with neither text nor citations.
var errEmptyAnswer = eris.New("search: empty answer")

// DefaultCallTimeout bounds a single engine call, retries excluded.
const DefaultCallTimeout = 45 * time.Second

// Chain asks engines in order until one returns a non-empty answer. Each
// engine sits behind its own circuit breaker and transient failures are
// retried before moving on.
type Chain struct {
	engines  []GroundedSearch
	breakers *resilience.Breakers
	retry    resilience.RetryConfig
	timeout  time.Duration
	metrics  *metrics.Recorder
	cost     *cost.Calculator
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithBreakers shares a breaker registry, e.g. with health reporting.
func WithBreakers(b *resilience.Breakers) ChainOption {
	return func(c *Chain) { c.breakers = b }
}

// WithRetry overrides the per-engine retry policy.
func WithRetry(cfg resilience.RetryConfig) ChainOption {
	return func(c *Chain) { c.retry = cfg }
}

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records each engine call.
func WithMetrics(m *metrics.Recorder) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// WithCost prices answered calls into the search spend metric.
func WithCost(calc *cost.Calculator) ChainOption {
	return func(c *Chain) { c.cost = calc }
}

// NewChain builds a fallback chain over engines in priority order.
func NewChain(engines []GroundedSearch, opts ...ChainOption) *Chain {
	c := &Chain{
		engines:  engines,
		breakers: resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:    resilience.DefaultRetryConfig(),
		timeout:  DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Engines returns the engine names in fallback order.
func (c *Chain) Engines() []string {
	names := make([]string, len(c.engines))
	for i, e := range c.engines {
		names[i] = e.Name()
	}
	return names
}

// Ask returns the first non-empty answer. When every engine fails the
// error is a CollaboratorError: KindCollaboratorUnavailable if all circuits
// were open, KindSearchGrounding otherwise.
func (c *Chain) Ask(ctx context.Context, prompt string) (*Answer, error) {
	if len(c.engines) == 0 {
		return nil, resilience.NewCollaboratorError(resilience.KindCollaboratorUnavailable, "search",
			eris.New("search: no engines configured"))
	}

	var errs []error
	allOpen := true
	for _, engine := range c.engines {
		ans, err := c.askOne(ctx, engine, prompt)
		c.metrics.SearchCall(engine.Name(), err)
		if err == nil {
			c.metrics.SearchSpend(engine.Name(), c.cost.Search(engine.Name(), ans.Model, ans.Usage.InputTokens, ans.Usage.OutputTokens))
			return ans, nil
		}
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			allOpen = false
		}
		errs = append(errs, eris.Wrapf(err, "search: %s", engine.Name()))
		zap.L().Warn("search: engine failed, trying next",
			zap.String("engine", engine.Name()),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	kind := resilience.KindSearchGrounding
	if allOpen {
		kind = resilience.KindCollaboratorUnavailable
	}
	return nil, resilience.NewCollaboratorError(kind, "search", errors.Join(errs...))
}

func (c *Chain) askOne(ctx context.Context, engine GroundedSearch, prompt string) (*Answer, error) {
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(engine.Name(), "ask")
	}
	cb := c.breakers.Get("search:" + engine.Name())
	return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*Answer, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Answer, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			ans, err := engine.Ask(callCtx, prompt)
			if err != nil {
				return nil, err
			}
			if ans.Empty() {
				return nil, errEmptyAnswer
			}
			if ans.Provider == "" {
				ans.Provider = engine.Name()
			}
			return ans, nil
		})
	})
}
