package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/compliance"
	"github.com/sells-group/prospect-cli/internal/crm"
	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/outreach"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/retrieval"
	"github.com/sells-group/prospect-cli/internal/search"
	"github.com/sells-group/prospect-cli/internal/seed"
	"github.com/sells-group/prospect-cli/internal/store"
	anthropicpkg "github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/jina"
	"github.com/sells-group/prospect-cli/pkg/notion"
	sfpkg "github.com/sells-group/prospect-cli/pkg/salesforce"
)

// pipelineEnv holds the initialized collaborators and the pipeline needed by
// the run, seed and serve commands.
type pipelineEnv struct {
	Store     store.Store
	Index     retrieval.Backend
	Embedder  inference.Embedder
	Generator inference.Generator
	Source    seed.Source
	Pipeline  *pipeline.Pipeline
	Writer    *pipeline.Writer

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		pe.closers[i]()
	}
	pe.closers = nil
}

func (pe *pipelineEnv) onClose(fn func()) {
	pe.closers = append(pe.closers, fn)
}

// Indexer returns a seed indexer over the environment's retrieval store.
func (pe *pipelineEnv) Indexer() seed.Indexer {
	return seed.Indexer{Backend: pe.Index, Embedder: pe.Embedder}
}

// newEnv assembles an environment from already constructed collaborators.
func newEnv(d pipeline.Deps, set pipeline.Settings) *pipelineEnv {
	return &pipelineEnv{
		Store:     d.Store,
		Index:     d.Index,
		Embedder:  d.Embedder,
		Generator: d.Generator,
		Source:    d.Source,
		Pipeline:  pipeline.New(d, set),
		Writer:    pipeline.NewWriter(d.Generator, d.Embedder, d.Index, set),
	}
}

// initEnv builds every collaborator from cfg. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (env *pipelineEnv, err error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cleanup := &pipelineEnv{}
	defer func() {
		if err != nil {
			cleanup.Close()
		}
	}()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	cleanup.onClose(func() { _ = st.Close() })

	index, err := retrieval.Open(ctx, retrieval.Options{
		Backend:     cfg.Retrieval.Backend,
		DatabaseURL: cfg.RetrievalURL(),
		Schema:      cfg.Retrieval.Schema,
		Table:       cfg.Retrieval.Table,
		ChromemPath: cfg.Retrieval.ChromemPath,
		Compress:    cfg.Retrieval.Compress,
		Pool:        &db.PoolConfig{MaxConns: cfg.Retrieval.Pool.MaxConns, MinConns: cfg.Retrieval.Pool.MinConns},
		TopK:        cfg.Retrieval.TopK,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open retrieval store")
	}
	cleanup.onClose(func() { _ = index.Close() })

	emb, closeEmb, err := initEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	cleanup.onClose(closeEmb)

	src, err := initSeedSource()
	if err != nil {
		return nil, err
	}

	d := pipeline.Deps{
		Store:     st,
		Source:    src,
		Index:     index,
		Embedder:  emb,
		Generator: inference.Disabled{},
	}

	if mode == "run" || mode == "serve" {
		if d.Generator, err = initGenerator(ctx); err != nil {
			return nil, err
		}
		if d.Searcher, d.Fetcher, err = initSearch(ctx); err != nil {
			return nil, err
		}
		if d.Compliance, err = initCompliance(st); err != nil {
			return nil, err
		}
		cal, err := outreach.NewSlotCalendar(cfg.Outreach.SlotDays, cfg.Outreach.SlotHour, cfg.Outreach.SlotMinutes, cfg.Outreach.Timezone)
		if err != nil {
			return nil, eris.Wrap(err, "init calendar")
		}
		d.Calendar = cal
		d.Messenger = outreach.NewStoreMessenger(st, cfg.Outreach.Sender)
		if d.CRM, err = initCRM(); err != nil {
			return nil, err
		}
	}

	env = newEnv(d, pipeline.SettingsFromConfig(cfg))
	env.closers = cleanup.closers
	cleanup.closers = nil
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func inferenceHTTPClient() *http.Client {
	return &http.Client{Timeout: time.Duration(cfg.Inference.TimeoutSecs) * time.Second}
}

// initEmbedder returns the configured embedder behind a vector cache. An
// unreachable Ollama embedder falls back to the hash embedder unless
// embeddings are required.
func initEmbedder(ctx context.Context) (inference.Embedder, func(), error) {
	var inner inference.Embedder
	switch cfg.Inference.Embedder {
	case "hash":
		inner = inference.NewHashEmbedder(cfg.Inference.EmbedDim)
	case "ollama":
		llm, err := inference.NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, inferenceHTTPClient())
		if err != nil {
			return nil, nil, err
		}
		oe, err := inference.NewOllamaEmbedder(llm)
		if err != nil {
			return nil, nil, err
		}
		inner = oe
		if err := inference.CheckEmbedder(ctx, oe); err != nil {
			if cfg.Inference.RequireEmbeddings {
				return nil, nil, eris.Wrap(err, "embeddings required")
			}
			zap.L().Warn("ollama embeddings unavailable, using hash embedder", zap.Error(err))
			inner = inference.NewHashEmbedder(cfg.Inference.EmbedDim)
		}
	default:
		return nil, nil, eris.Errorf("unsupported embedder: %s", cfg.Inference.Embedder)
	}

	cached, err := inference.NewCachedEmbedder(inner, cfg.Inference.EmbedCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// initGenerator returns the configured generator behind a circuit breaker.
func initGenerator(ctx context.Context) (inference.Generator, error) {
	var g inference.Generator
	switch cfg.Inference.Provider {
	case "none":
		zap.L().Info("inference disabled, drafts will use templates")
		return inference.Disabled{}, nil
	case "anthropic":
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)
		g = inference.NewAnthropicGenerator(client, cfg.Anthropic.Model, cfg.Inference.MaxTokens)
	case "ollama":
		llm, err := inference.NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.Model, inferenceHTTPClient())
		if err != nil {
			return nil, err
		}
		g = inference.NewOllamaGenerator(llm, cfg.Ollama.Model, cfg.Inference.MaxTokens)
	default:
		return nil, eris.Errorf("unsupported inference provider: %s", cfg.Inference.Provider)
	}

	if cfg.Inference.RequireLLM {
		if err := inference.CheckGenerator(ctx, g); err != nil {
			return nil, eris.Wrap(err, "llm required")
		}
	}
	return inference.NewGuarded(g, resilience.NewBreaker("inference", 3, 30*time.Second)), nil
}

// initSearch returns the web searcher and, when available, a page fetcher.
func initSearch(ctx context.Context) (search.Searcher, search.Fetcher, error) {
	if !cfg.Search.Online {
		zap.L().Info("search offline, using canned results")
		return search.Offline{}, nil, nil
	}

	timeout := time.Duration(cfg.Search.TimeoutSecs) * time.Second
	retry := resilience.DefaultPolicy("search")
	retry.Attempts = cfg.Search.Retries + 1

	var fetcher search.Fetcher
	var jinaSearch *search.Jina
	if cfg.Jina.Key != "" {
		opts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL), jina.WithRetryPolicy(retry)}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		jinaSearch = search.NewJina(jina.NewClient(cfg.Jina.Key, opts...))
		fetcher = jinaSearch
	}

	switch cfg.Search.Provider {
	case "jina":
		if jinaSearch == nil {
			return nil, nil, eris.New("jina.key is required for online jina search")
		}
		return search.NewLimited(jinaSearch, cfg.Search.RatePerSec, timeout), fetcher, nil
	case "gemini":
		g, err := search.NewGemini(ctx, search.GeminiConfig{
			APIKey:  cfg.Gemini.Key,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Retry:   retry,
		})
		if err != nil {
			return nil, nil, err
		}
		return search.NewLimited(g, cfg.Search.RatePerSec, timeout), fetcher, nil
	default:
		return nil, nil, eris.Errorf("unsupported search provider: %s", cfg.Search.Provider)
	}
}

func initSeedSource() (seed.Source, error) {
	switch cfg.Seed.Source {
	case "file":
		return seed.FileSource{Path: cfg.Seed.Path, Sheet: cfg.Seed.Sheet}, nil
	case "remote":
		return seed.RemoteSource{
			URL:     cfg.Seed.URL,
			Sheet:   cfg.Seed.Sheet,
			Timeout: time.Minute,
			Retry:   resilience.DefaultPolicy("seed"),
		}, nil
	case "notion":
		return seed.NotionSource{Client: notion.NewClient(cfg.Notion.Token), DatabaseID: cfg.Notion.CompanyDB}, nil
	default:
		return nil, eris.Errorf("unsupported seed source: %s", cfg.Seed.Source)
	}
}

// initCompliance loads the policy file when configured; a configured footer
// overrides the policy's.
func initCompliance(st compliance.SuppressionStore) (*compliance.Engine, error) {
	policy := compliance.DefaultPolicy()
	if cfg.Compliance.PolicyFile != "" {
		p, err := compliance.LoadPolicy(cfg.Compliance.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	if cfg.Compliance.Footer != "" {
		policy.Footer = cfg.Compliance.Footer
	}
	return compliance.NewEngine(policy, st, cfg.Compliance.MinDaysBetweenTouches), nil
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	client, err := sfpkg.Connect(cfg.Salesforce.LoginURL, cfg.Salesforce.Username, cfg.Salesforce.ClientID, string(pemData))
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}
	return client, nil
}

// initCRM returns the handoff sinks: Salesforce when enabled, and the Notion
// company database when companies are seeded from it. nil means no sink.
func initCRM() (crm.Sink, error) {
	var sinks crm.Multi
	if cfg.Salesforce.Enabled {
		client, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, crm.NewSalesforceSink(client))
	}
	if cfg.Seed.Source == "notion" && cfg.Notion.Token != "" {
		sinks = append(sinks, crm.NewNotionSink(notion.NewClient(cfg.Notion.Token)))
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
