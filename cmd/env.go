package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/config"
	"github.com/sells-group/competitor-intel/internal/cost"
	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/kb"
	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/provider"
	"github.com/sells-group/competitor-intel/internal/reconcile"
	"github.com/sells-group/competitor-intel/internal/resilience"
	"github.com/sells-group/competitor-intel/internal/search"
	"github.com/sells-group/competitor-intel/internal/store"
	"github.com/sells-group/competitor-intel/internal/unified"
	"github.com/sells-group/competitor-intel/internal/urlcheck"
	"github.com/sells-group/competitor-intel/internal/verify"
	anthropicpkg "github.com/sells-group/competitor-intel/pkg/anthropic"
	"github.com/sells-group/competitor-intel/pkg/notion"
	"github.com/sells-group/competitor-intel/pkg/perplexity"
	"github.com/sells-group/competitor-intel/pkg/salesforce"
)

// engineEnv holds the store and engine components shared by commands.
type engineEnv struct {
	Store      store.Store
	Registry   *prometheus.Registry
	Metrics    *metrics.Recorder
	Reconciler *reconcile.Reconciler
	Providers  *provider.Registry
	Search     search.GroundedSearch // nil when no engine is configured
	Unified    *unified.Builder
	Discoverer *discovery.Discoverer
	Verifier   *verify.Verifier
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine validates the config for command, opens and migrates the
// store, and wires every engine component. Callers should defer env.Close().
func initEngine(ctx context.Context, command string) (*engineEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rec, err := initReconciler(cfg.Reconcile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	providers := initProviders(cfg, m)

	engine, err := initSearch(ctx, cfg, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &engineEnv{
		Store:      st,
		Registry:   reg,
		Metrics:    m,
		Reconciler: rec,
		Providers:  providers,
		Search:     engine,
	}

	env.Unified = unified.NewBuilder(st, rec,
		unified.WithKB(initKB(cfg.Weaviate, st)),
		unified.WithProviders(providers),
		unified.WithMetrics(m),
	)

	discOpts := []discovery.Option{
		discovery.WithProviders(providers),
		discovery.WithValidator(urlcheck.NewValidator()),
		discovery.WithCache(urlcheck.NewCache(time.Duration(cfg.Discovery.URLCacheTTLMins) * time.Minute)),
		discovery.WithMetrics(m),
		discovery.WithInterCallDelay(time.Duration(cfg.Discovery.InterCallDelayMs) * time.Millisecond),
		discovery.WithTimeouts(
			time.Duration(cfg.Discovery.SearchTimeoutSecs)*time.Second,
			time.Duration(cfg.Discovery.HeadTimeoutSecs)*time.Second,
		),
		discovery.WithConcurrency(cfg.Batch.MaxConcurrentEntities),
	}
	if engine != nil {
		discOpts = append(discOpts, discovery.WithSearch(engine))
	}
	env.Discoverer = discovery.New(st, discOpts...)

	if engine != nil {
		env.Verifier = verify.New(st, engine,
			verify.WithMetrics(m),
			verify.WithInterCallDelay(time.Duration(cfg.Verify.InterCallDelayMs)*time.Millisecond),
			verify.WithTimeout(time.Duration(cfg.Verify.TimeoutSecs)*time.Second),
			verify.WithConcurrency(cfg.Batch.MaxConcurrentEntities),
		)
	}

	zap.L().Info("engine ready",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("providers", providers.List()),
		zap.Bool("search", engine != nil),
		zap.String("policy", cfg.Reconcile.Policy),
	)
	return env, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		return store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{MaxConns: sc.MaxConns, MinConns: sc.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func initReconciler(rc config.ReconcileConfig) (*reconcile.Reconciler, error) {
	opts := []reconcile.Option{reconcile.WithPolicy(reconcile.PolicyByName(rc.Policy))}
	if rc.ConfigPath != "" {
		t, err := reconcile.LoadConfig(rc.ConfigPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, reconcile.WithThresholds(t))
	}
	return reconcile.New(opts...), nil
}

// initProviders registers the configured providers in authority order.
// Providers without credentials are skipped with a warning.
func initProviders(c *config.Config, m *metrics.Recorder) *provider.Registry {
	reg := provider.NewRegistry(
		provider.WithTimeout(time.Duration(c.Providers.TimeoutSecs)*time.Second),
		provider.WithMetrics(m),
	)
	for _, name := range c.Providers.Order {
		var p provider.FieldValueProvider
		switch name {
		case "salesforce":
			if c.Salesforce.ClientID == "" {
				zap.L().Debug("salesforce not configured, provider disabled")
				continue
			}
			client, err := salesforce.Connect(salesforce.Creds{
				LoginURL: c.Salesforce.LoginURL,
				Username: c.Salesforce.Username,
				ClientID: c.Salesforce.ClientID,
				KeyPath:  c.Salesforce.KeyPath,
			})
			if err != nil {
				zap.L().Warn("salesforce provider disabled", zap.Error(err))
				continue
			}
			p = provider.NewSalesforceProvider(client)
		case "notion":
			if c.Notion.Token == "" {
				zap.L().Debug("notion not configured, provider disabled")
				continue
			}
			p = provider.NewNotionProvider(notion.NewClient(c.Notion.Token, c.Notion.RequestsPerSecond), c.Notion.CompetitorDB)
		case "file":
			if c.Providers.File == "" {
				continue
			}
			fp, err := provider.LoadFileProvider(c.Providers.File)
			if err != nil {
				zap.L().Warn("file provider disabled", zap.String("path", c.Providers.File), zap.Error(err))
				continue
			}
			p = fp
		default:
			zap.L().Warn("unknown provider in providers.order", zap.String("provider", name))
			continue
		}
		reg.Register(provider.NewLimited(p, c.Providers.PerMinute))
	}
	return reg
}

// initSearch builds the grounded-search chain in configured order. It
// returns nil when no engine has a key.
func initSearch(ctx context.Context, c *config.Config, m *metrics.Recorder) (search.GroundedSearch, error) {
	var engines []search.GroundedSearch
	for _, name := range c.Search.Order {
		switch name {
		case "perplexity":
			if c.Perplexity.Key == "" {
				continue
			}
			client := perplexity.NewClient(c.Perplexity.Key,
				perplexity.WithBaseURL(c.Perplexity.BaseURL),
				perplexity.WithModel(c.Perplexity.Model),
			)
			engines = append(engines, search.NewPerplexity(client, c.Perplexity.Model))
		case "gemini":
			if c.Gemini.Key == "" {
				continue
			}
			g, err := search.NewGemini(ctx, c.Gemini.Key, c.Gemini.Model)
			if err != nil {
				return nil, err
			}
			engines = append(engines, g)
		case "anthropic":
			if c.Anthropic.Key == "" {
				continue
			}
			engines = append(engines, search.NewAnthropic(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic.Model))
		default:
			zap.L().Warn("unknown engine in search.order", zap.String("engine", name))
		}
	}
	if len(engines) == 0 {
		return nil, nil
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	if c.Search.FailureThreshold > 0 {
		breakerCfg.FailureThreshold = c.Search.FailureThreshold
	}
	if c.Search.ResetTimeoutSecs > 0 {
		breakerCfg.ResetTimeout = time.Duration(c.Search.ResetTimeoutSecs) * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	if c.Search.MaxAttempts > 0 {
		retry.MaxAttempts = c.Search.MaxAttempts
	}
	return search.NewChain(engines,
		search.WithBreakers(resilience.NewBreakers(breakerCfg)),
		search.WithRetry(retry),
		search.WithMetrics(m),
		search.WithCost(cost.NewCalculator(cost.DefaultRates())),
	), nil
}

// initKB prefers Weaviate and falls back to stored extractions.
func initKB(wc config.WeaviateConfig, st store.Store) kb.ContextProvider {
	local := kb.NewStoreProvider(st, wc.Limit)
	if wc.Host == "" {
		return local
	}
	wp, err := kb.NewWeaviateProvider(kb.WeaviateConfig{
		Host:   wc.Host,
		Scheme: wc.Scheme,
		APIKey: wc.APIKey,
		Class:  wc.Class,
		Limit:  wc.Limit,
	})
	if err != nil {
		zap.L().Warn("weaviate disabled, using stored extractions", zap.Error(err))
		return local
	}
	return kb.NewChain(wp, local)
}
