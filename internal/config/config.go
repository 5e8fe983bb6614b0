package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Inference  InferenceConfig  `yaml:"inference" mapstructure:"inference"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Seed       SeedConfig       `yaml:"seed" mapstructure:"seed"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PoolConfig holds optional Postgres connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"` // sqlite, postgres
	Path        string     `yaml:"path" mapstructure:"path"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RetrievalConfig configures the embedding store backend.
type RetrievalConfig struct {
	Backend     string     `yaml:"backend" mapstructure:"backend"` // memory, postgres, chromem
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Schema      string     `yaml:"schema" mapstructure:"schema"`
	Table       string     `yaml:"table" mapstructure:"table"`
	ChromemPath string     `yaml:"chromem_path" mapstructure:"chromem_path"`
	Compress    bool       `yaml:"compress" mapstructure:"compress"`
	TopK        int        `yaml:"top_k" mapstructure:"top_k"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// InferenceConfig selects the generation and embedding providers.
type InferenceConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // ollama, anthropic, none
	Embedder          string  `yaml:"embedder" mapstructure:"embedder"` // ollama, hash
	RequireLLM        bool    `yaml:"require_llm" mapstructure:"require_llm"`
	RequireEmbeddings bool    `yaml:"require_embeddings" mapstructure:"require_embeddings"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	EmbedDim          int     `yaml:"embed_dim" mapstructure:"embed_dim"`
	EmbedCacheSize    int64   `yaml:"embed_cache_size" mapstructure:"embed_cache_size"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OllamaConfig holds local Ollama server settings.
type OllamaConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	EmbedModel string `yaml:"embed_model" mapstructure:"embed_model"`
}

// SearchConfig configures the web search collaborator.
type SearchConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // jina, gemini
	Online      bool    `yaml:"online" mapstructure:"online"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int     `yaml:"retries" mapstructure:"retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// JinaConfig holds Jina AI search and reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// GeminiConfig holds Google Gemini grounded-search settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SeedConfig selects where target companies are loaded from.
type SeedConfig struct {
	Source string `yaml:"source" mapstructure:"source"` // file, remote, notion
	Path   string `yaml:"path" mapstructure:"path"`
	URL    string `yaml:"url" mapstructure:"url"`
	Sheet  string `yaml:"sheet" mapstructure:"sheet"`
}

// NotionConfig holds Notion API credentials and the company database ID.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	CompanyDB string `yaml:"company_db" mapstructure:"company_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the CRM handoff.
type SalesforceConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ScoreWeights are the Scorer's signal contributions.
type ScoreWeights struct {
	IndustryHigh   float64 `yaml:"industry_high" mapstructure:"industry_high"`
	IndustryOther  float64 `yaml:"industry_other" mapstructure:"industry_other"`
	SizeSweetSpot  float64 `yaml:"size_sweet_spot" mapstructure:"size_sweet_spot"`
	SizeEnterprise float64 `yaml:"size_enterprise" mapstructure:"size_enterprise"`
	SizeSmall      float64 `yaml:"size_small" mapstructure:"size_small"`
	PainEach       float64 `yaml:"pain_each" mapstructure:"pain_each"`
	PainMax        float64 `yaml:"pain_max" mapstructure:"pain_max"`
	FreshEach      float64 `yaml:"fresh_each" mapstructure:"fresh_each"`
	FreshMax       float64 `yaml:"fresh_max" mapstructure:"fresh_max"`
	Confidence     float64 `yaml:"confidence" mapstructure:"confidence"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	FactTTLHours        int          `yaml:"fact_ttl_hours" mapstructure:"fact_ttl_hours"`
	HitsPerQuery        int          `yaml:"hits_per_query" mapstructure:"hits_per_query"`
	MinFitScore         float64      `yaml:"min_fit_score" mapstructure:"min_fit_score"`
	HighValueIndustries []string     `yaml:"high_value_industries" mapstructure:"high_value_industries"`
	PainKeywords        []string     `yaml:"pain_keywords" mapstructure:"pain_keywords"`
	Weights             ScoreWeights `yaml:"weights" mapstructure:"weights"`
}

// ComplianceConfig configures the policy gate.
type ComplianceConfig struct {
	PolicyFile            string `yaml:"policy_file" mapstructure:"policy_file"`
	Footer                string `yaml:"footer" mapstructure:"footer"`
	MinDaysBetweenTouches int    `yaml:"min_days_between_touches" mapstructure:"min_days_between_touches"`
}

// OutreachConfig configures messaging and calendar suggestions.
type OutreachConfig struct {
	Sender      string `yaml:"sender" mapstructure:"sender"`
	SlotDays    []int  `yaml:"slot_days" mapstructure:"slot_days"`
	SlotHour    int    `yaml:"slot_hour" mapstructure:"slot_hour"`
	SlotMinutes int    `yaml:"slot_minutes" mapstructure:"slot_minutes"`
	Timezone    string `yaml:"timezone" mapstructure:"timezone"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "prospect.db")
	v.SetDefault("retrieval.backend", "memory")
	v.SetDefault("retrieval.schema", "public")
	v.SetDefault("retrieval.table", "embeddings")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("inference.provider", "ollama")
	v.SetDefault("inference.embedder", "ollama")
	v.SetDefault("inference.require_llm", true)
	v.SetDefault("inference.require_embeddings", true)
	v.SetDefault("inference.temperature", 0.4)
	v.SetDefault("inference.max_tokens", 1024)
	v.SetDefault("inference.embed_dim", 256)
	v.SetDefault("inference.embed_cache_size", 10000)
	v.SetDefault("inference.timeout_secs", 120)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ollama.base_url", "http://127.0.0.1:11434")
	v.SetDefault("ollama.model", "qwen3:0.6b")
	v.SetDefault("ollama.embed_model", "nomic-embed-text")
	v.SetDefault("search.provider", "jina")
	v.SetDefault("search.online", true)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.retries", 1)
	v.SetDefault("search.rate_per_sec", 2.0)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("seed.source", "file")
	v.SetDefault("seed.path", "data/companies.json")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("pipeline.fact_ttl_hours", 168)
	v.SetDefault("pipeline.hits_per_query", 2)
	v.SetDefault("pipeline.min_fit_score", 0.5)
	v.SetDefault("pipeline.high_value_industries", []string{"SaaS", "FinTech", "E-commerce", "Healthcare Tech"})
	v.SetDefault("pipeline.pain_keywords", []string{"customer retention", "NPS", "support efficiency", "personalization"})
	v.SetDefault("pipeline.weights.industry_high", 0.3)
	v.SetDefault("pipeline.weights.industry_other", 0.1)
	v.SetDefault("pipeline.weights.size_sweet_spot", 0.2)
	v.SetDefault("pipeline.weights.size_enterprise", 0.1)
	v.SetDefault("pipeline.weights.size_small", 0.05)
	v.SetDefault("pipeline.weights.pain_each", 0.1)
	v.SetDefault("pipeline.weights.pain_max", 0.3)
	v.SetDefault("pipeline.weights.fresh_each", 0.05)
	v.SetDefault("pipeline.weights.fresh_max", 0.2)
	v.SetDefault("pipeline.weights.confidence", 0.2)
	v.SetDefault("compliance.min_days_between_touches", 7)
	v.SetDefault("outreach.sender", "team@lucidya.example")
	v.SetDefault("outreach.slot_days", []int{2, 3, 5})
	v.SetDefault("outreach.slot_hour", 14)
	v.SetDefault("outreach.slot_minutes", 30)
	v.SetDefault("outreach.timezone", "UTC")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode. All problems
// are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			add("store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}

	switch mode {
	case "run", "serve":
		c.validatePipeline(add)
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			add("server.port must be > 0 and <= 65535")
		}
	case "seed":
		c.validateRetrieval(add)
		c.validateSeed(add)
	case "admin":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline(add func(string, ...any)) {
	c.validateRetrieval(add)
	c.validateSeed(add)

	switch c.Inference.Provider {
	case "ollama", "none":
	case "anthropic":
		if c.Anthropic.Key == "" {
			add("anthropic.key is required for the anthropic provider")
		}
	default:
		add("inference.provider must be ollama, anthropic or none, got %q", c.Inference.Provider)
	}
	switch c.Inference.Embedder {
	case "ollama":
	case "hash":
		if c.Inference.EmbedDim <= 0 {
			add("inference.embed_dim must be > 0")
		}
	default:
		add("inference.embedder must be ollama or hash, got %q", c.Inference.Embedder)
	}

	if c.Search.Online {
		switch c.Search.Provider {
		case "jina":
			if c.Jina.Key == "" {
				add("jina.key is required for online jina search")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				add("gemini.key is required for online gemini search")
			}
		default:
			add("search.provider must be jina or gemini, got %q", c.Search.Provider)
		}
	}

	if c.Pipeline.MinFitScore < 0 || c.Pipeline.MinFitScore > 1 {
		add("pipeline.min_fit_score must be between 0 and 1")
	}
	if c.Pipeline.FactTTLHours <= 0 {
		add("pipeline.fact_ttl_hours must be > 0")
	}
	if c.Pipeline.HitsPerQuery < 0 {
		add("pipeline.hits_per_query must be >= 0")
	}
	w := c.Pipeline.Weights
	for _, val := range []float64{w.IndustryHigh, w.IndustryOther, w.SizeSweetSpot, w.SizeEnterprise, w.SizeSmall, w.PainEach, w.PainMax, w.FreshEach, w.FreshMax, w.Confidence} {
		if val < 0 {
			add("pipeline.weights values must be >= 0")
			break
		}
	}
	if c.Compliance.MinDaysBetweenTouches < 0 {
		add("compliance.min_days_between_touches must be >= 0")
	}
	if c.Salesforce.Enabled && (c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "") {
		add("salesforce.client_id, salesforce.username and salesforce.key_path are required when salesforce is enabled")
	}
}

func (c *Config) validateRetrieval(add func(string, ...any)) {
	switch c.Retrieval.Backend {
	case "memory", "chromem":
	case "postgres", "pgvector":
		if c.Retrieval.DatabaseURL == "" && c.Store.DatabaseURL == "" {
			add("retrieval.database_url (or store.database_url) is required for the postgres backend")
		}
	default:
		add("retrieval.backend must be memory, postgres or chromem, got %q", c.Retrieval.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		add("retrieval.top_k must be > 0")
	}
}

func (c *Config) validateSeed(add func(string, ...any)) {
	switch c.Seed.Source {
	case "file":
		if c.Seed.Path == "" {
			add("seed.path is required for the file source")
		}
	case "remote":
		if c.Seed.URL == "" {
			add("seed.url is required for the remote source")
		}
	case "notion":
		if c.Notion.Token == "" {
			add("notion.token is required for the notion source")
		}
		if c.Notion.CompanyDB == "" {
			add("notion.company_db is required for the notion source")
		}
	default:
		add("seed.source must be file, remote or notion, got %q", c.Seed.Source)
	}
}

// RetrievalURL returns the retrieval database URL, falling back to the store's.
func (c *Config) RetrievalURL() string {
	if c.Retrieval.DatabaseURL != "" {
		return c.Retrieval.DatabaseURL
	}
	return c.Store.DatabaseURL
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
