package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Weaviate   WeaviateConfig   `yaml:"weaviate" mapstructure:"weaviate"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Verify     VerifyConfig     `yaml:"verify" mapstructure:"verify"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is
// the database file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig bounds parallel work across competitors.
type BatchConfig struct {
	MaxConcurrentEntities int `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
}

// SearchConfig orders the grounded search engines and guards them.
type SearchConfig struct {
	Order            []string `yaml:"order" mapstructure:"order"`
	FailureThreshold int      `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int      `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// WeaviateConfig locates the knowledge-base vector store.
type WeaviateConfig struct {
	Host   string `yaml:"host" mapstructure:"host"`
	Scheme string `yaml:"scheme" mapstructure:"scheme"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	Class  string `yaml:"class" mapstructure:"class"`
	Limit  int    `yaml:"limit" mapstructure:"limit"`
}

// NotionConfig holds Notion API credentials and the competitor database ID.
type NotionConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	CompetitorDB string `yaml:"competitor_db" mapstructure:"competitor_db"`

	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ProvidersConfig configures the enterprise field-value providers. Order is
// authority order: earlier providers win per field.
type ProvidersConfig struct {
	Order       []string `yaml:"order" mapstructure:"order"`
	File        string   `yaml:"file" mapstructure:"file"`
	PerMinute   int      `yaml:"per_minute" mapstructure:"per_minute"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DiscoveryConfig tunes the source discovery loop.
type DiscoveryConfig struct {
	InterCallDelayMs  int `yaml:"inter_call_delay_ms" mapstructure:"inter_call_delay_ms"`
	SearchTimeoutSecs int `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	HeadTimeoutSecs   int `yaml:"head_timeout_secs" mapstructure:"head_timeout_secs"`
	URLCacheTTLMins   int `yaml:"url_cache_ttl_mins" mapstructure:"url_cache_ttl_mins"`
}

// VerifyConfig tunes the verification loop.
type VerifyConfig struct {
	InterCallDelayMs int `yaml:"inter_call_delay_ms" mapstructure:"inter_call_delay_ms"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReconcileConfig selects reconciliation thresholds and conflict policy.
type ReconcileConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
	Policy     string `yaml:"policy" mapstructure:"policy"`
}

// MonitoringConfig configures the background alert checker run by serve.
// Alerts are only sent when WebhookURL is set; zero thresholds disable
// their check.
type MonitoringConfig struct {
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MinCoveragePercent        float64 `yaml:"min_coverage_percent" mapstructure:"min_coverage_percent"`
	CorrectionThreshold       int     `yaml:"correction_threshold" mapstructure:"correction_threshold"`
	UnverifiableRateThreshold float64 `yaml:"unverifiable_rate_threshold" mapstructure:"unverifiable_rate_threshold"`
	CostThresholdUSD          float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// TemporalConfig locates the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// Load reads configuration from an optional .env file, config.yaml and the
// INTEL_ environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "competitor_intel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_entities", 3)
	v.SetDefault("search.order", []string{"perplexity", "gemini", "anthropic"})
	v.SetDefault("search.failure_threshold", 5)
	v.SetDefault("search.reset_timeout_secs", 60)
	v.SetDefault("search.max_attempts", 2)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("weaviate.scheme", "http")
	v.SetDefault("weaviate.class", "KnowledgeChunk")
	v.SetDefault("weaviate.limit", 5)
	v.SetDefault("notion.requests_per_second", 3.0)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("providers.order", []string{"salesforce", "notion", "file"})
	v.SetDefault("providers.per_minute", 60)
	v.SetDefault("providers.timeout_secs", 15)
	v.SetDefault("discovery.inter_call_delay_ms", 2000)
	v.SetDefault("discovery.search_timeout_secs", 30)
	v.SetDefault("discovery.head_timeout_secs", 10)
	v.SetDefault("discovery.url_cache_ttl_mins", 60)
	v.SetDefault("verify.inter_call_delay_ms", 1000)
	v.SetDefault("verify.timeout_secs", 45)
	v.SetDefault("reconcile.policy", "pairwise")
	// Empty defaults register secret keys so AutomaticEnv can populate them.
	for _, key := range []string{
		"perplexity.key", "gemini.key", "anthropic.key",
		"weaviate.host", "weaviate.api_key",
		"notion.token", "notion.competitor_db",
		"salesforce.client_id", "salesforce.username", "salesforce.key_path",
		"providers.file", "reconcile.config_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.min_coverage_percent", 50.0)
	v.SetDefault("monitoring.correction_threshold", 10)
	v.SetDefault("monitoring.unverifiable_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "competitor-refresh")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a command needs before it starts work. All
// problems are reported together.
func (c *Config) Validate(command string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (INTEL_STORE_DATABASE_URL)")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q (want postgres or sqlite)", c.Store.Driver))
	}
	if c.Batch.MaxConcurrentEntities < 1 || c.Batch.MaxConcurrentEntities > 20 {
		errs = append(errs, "batch.max_concurrent_entities must be between 1 and 20")
	}
	if c.Notion.Token != "" && c.Notion.CompetitorDB == "" {
		errs = append(errs, "notion.competitor_db is required when notion.token is set")
	}
	if c.Monitoring.WebhookURL != "" && c.Monitoring.LookbackWindowHours <= 0 {
		errs = append(errs, "monitoring.lookback_window_hours must be > 0")
	}
	if p := c.Reconcile.Policy; p != "" && p != "pairwise" && p != "merged" {
		errs = append(errs, fmt.Sprintf("unknown reconcile.policy %q (want pairwise or merged)", p))
	}

	switch command {
	case "verify", "worker":
		if !c.HasSearchEngine() {
			errs = append(errs, "at least one search engine key is required (perplexity.key, gemini.key or anthropic.key)")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	}
	if (command == "worker" || command == "schedule") && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", command, strings.Join(errs, "; "))
	}
	return nil
}

// HasSearchEngine reports whether any grounded search engine is configured.
func (c *Config) HasSearchEngine() bool {
	return c.Perplexity.Key != "" || c.Gemini.Key != "" || c.Anthropic.Key != ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
