// Package ragmesh provides a high-level façade that turns a configuration
// file into a running query orchestrator. Most applications interact with
// this package by:
//  1. Loading a config.Config (config.Load)
//  2. Creating a Mesh via New(), optionally overriding models or knowledge
//     backends
//  3. Calling HandleQuery once per user message, keyed by a session id
//
// The façade builds the model registry, knowledge backends, router and
// ContextManager described by the configuration and delegates orchestration
// to engine.Engine.
package ragmesh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/ragmesh/agent"
	"github.com/hupe1980/ragmesh/config"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/engine"
	"github.com/hupe1980/ragmesh/knowledge"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
	anthropicmodel "github.com/hupe1980/ragmesh/model/anthropic"
	"github.com/hupe1980/ragmesh/model/ollama"
	"github.com/hupe1980/ragmesh/model/openai"
	"github.com/hupe1980/ragmesh/router"
	"github.com/hupe1980/ragmesh/session"
)

// Options configures the Mesh instance.
type Options struct {
	// BaseDir resolves relative knowledge directories. Documents loaded from
	// a relative dir keep that relative path as their source path. Defaults
	// to the working directory.
	BaseDir string

	// Models replaces the configured model of the same config_name.
	Models map[string]model.Model
	// Embedders replaces the configured embedding model of the same
	// config_name.
	Embedders map[string]core.Embedder
	// Knowledge replaces the configured backend of the same knowledge_id.
	Knowledge map[string]core.KnowledgeClient
	// TurnStore replaces the session backend chosen by the ContextManager
	// agent.
	TurnStore core.TurnStore

	Callbacks *engine.CallbackManager

	// Logger defaults to one built from the logger section.
	Logger *logging.MeshLogger
}

// Mesh is the assembled orchestrator.
type Mesh struct {
	engine  *engine.Engine
	table   *config.Table
	logger  *logging.MeshLogger
	closers []func() error
}

// New builds every component described by cfg. cfg must have been
// validated (config.Load and config.Parse do that).
func New(cfg *config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logger.Level), cfg.Logger.Format, false)
	}

	table, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	m := &Mesh{table: table, logger: opts.Logger.WithComponent("mesh")}

	if cfg.Orchestrator.MaxQueryLength > 0 {
		if opts.Callbacks == nil {
			opts.Callbacks = engine.NewCallbackManager()
		}
		opts.Callbacks.RegisterCallback(engine.MaxQueryLength(cfg.Orchestrator.MaxQueryLength))
	}

	registry, embedders, err := buildModels(cfg, &opts)
	if err != nil {
		return nil, err
	}
	kc, err := buildKnowledge(cfg, &opts, embedders, m.logger)
	if err != nil {
		return nil, err
	}
	r, err := buildRouter(table.Router, embedders, opts.Logger)
	if err != nil {
		return nil, err
	}
	sessions, err := m.buildSessions(table.Context, &opts)
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	e, err := engine.New(table.Profiles, kc, registry, func(o *engine.Options) {
		o.Config = engine.Config{
			SpecialistTimeout:     cfg.Orchestrator.SpecialistTimeout,
			HistoryWindow:         cfg.Orchestrator.HistoryWindow,
			MaxModelCallsPerQuery: cfg.Orchestrator.MaxModelCallsPerQuery,
			MaxConcurrentQueries:  cfg.Orchestrator.MaxConcurrentQueries,
		}
		o.Router = r
		o.Sessions = sessions
		o.Mapper = table.Mapper
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
		if cfg.Orchestrator.FloorText != "" {
			o.Fallback = agent.NewFallback(registry, func(fo *agent.FallbackOptions) {
				fo.Logger = opts.Logger
				fo.FloorText = cfg.Orchestrator.FloorText
			})
		}
	})
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	m.engine = e

	m.logger.Info("Mesh ready",
		"specialists", len(e.Specialists()),
		"models", len(registry.IDs()),
		"knowledge", len(cfg.Knowledge))
	return m, nil
}

// HandleQuery answers text within a session. See engine.Engine.HandleQuery.
func (m *Mesh) HandleQuery(ctx context.Context, sessionID, text string) (core.FinalAnswer, error) {
	return m.engine.HandleQuery(ctx, sessionID, text)
}

// CloseSession drops a session's history. A later query on the same id
// starts a fresh session.
func (m *Mesh) CloseSession(ctx context.Context, sessionID string) error {
	return m.engine.Sessions().Close(ctx, sessionID)
}

// Engine exposes the underlying orchestrator.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// Table returns the validated agent table.
func (m *Mesh) Table() *config.Table { return m.table }

// Close releases backend connections.
func (m *Mesh) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c())
	}
	m.closers = nil
	return errors.Join(errs...)
}

func buildModels(cfg *config.Config, opts *Options) (*model.Registry, map[string]core.Embedder, error) {
	registry := model.NewRegistry(func(o *model.RegistryOptions) { o.Logger = opts.Logger })
	embedders := make(map[string]core.Embedder)

	for _, mc := range cfg.Models {
		if mc.IsEmbedding() {
			if emb, ok := opts.Embedders[mc.ConfigName]; ok {
				embedders[mc.ConfigName] = emb
				continue
			}
			embedders[mc.ConfigName] = newEmbedder(mc)
			continue
		}

		m, ok := opts.Models[mc.ConfigName]
		if !ok {
			var err error
			if m, err = newModel(mc); err != nil {
				return nil, nil, err
			}
		}
		registry.Register(mc.ConfigName, m, func(o *model.EndpointOptions) {
			o.Timeout = mc.Timeout
			o.RequestsPerSecond = mc.RequestsPerSecond
			o.Burst = mc.Burst
		})
	}
	return registry, embedders, nil
}

func newModel(mc config.ModelConfig) (model.Model, error) {
	switch mc.ModelType {
	case config.ModelOpenAIChat:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = mc.ModelName
			o.APIKey = mc.APIKey
			o.BaseURL = mc.Host
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
		}), nil
	case config.ModelAnthropicChat:
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropic.Model(mc.ModelName)
			o.APIKey = mc.APIKey
			o.BaseURL = mc.Host
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
		}), nil
	case config.ModelOllamaChat:
		return ollama.NewModel(func(o *ollama.Options) {
			o.Model = mc.ModelName
			if mc.Host != "" {
				o.Host = mc.Host
			}
			if mc.KeepAlive != "" {
				o.KeepAlive = mc.KeepAlive
			}
			o.Options = mc.Options
			if mc.Timeout > 0 {
				o.Timeout = mc.Timeout
			}
		}), nil
	case config.ModelMock:
		name := mc.ModelName
		if name == "" {
			name = mc.ConfigName
		}
		return model.NewMockModel(name).SetDefault(mc.Response), nil
	default:
		return nil, fmt.Errorf("model %q: unsupported model_type %q", mc.ConfigName, mc.ModelType)
	}
}

func newEmbedder(mc config.ModelConfig) core.Embedder {
	if mc.ModelType == config.ModelOpenAIEmbedding {
		return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
			o.Model = mc.ModelName
			o.APIKey = mc.APIKey
			o.BaseURL = mc.Host
		})
	}
	return ollama.NewEmbedder(func(o *ollama.EmbedderOptions) {
		o.Model = mc.ModelName
		if mc.Host != "" {
			o.Host = mc.Host
		}
		if mc.KeepAlive != "" {
			o.KeepAlive = mc.KeepAlive
		}
		if mc.Timeout > 0 {
			o.Timeout = mc.Timeout
		}
	})
}

func buildKnowledge(cfg *config.Config, opts *Options, embedders map[string]core.Embedder, logger *logging.MeshLogger) (core.KnowledgeClient, error) {
	mux := knowledge.NewMux(nil)
	var memory *knowledge.InMemoryStore

	for _, kc := range cfg.Knowledge {
		if backend, ok := opts.Knowledge[kc.KnowledgeID]; ok {
			mux.Handle(kc.KnowledgeID, backend)
			continue
		}
		switch kc.Backend {
		case config.BackendMemory:
			if memory == nil {
				memory = knowledge.NewInMemoryStore()
			}
			n, err := loadMemory(memory, kc, opts.BaseDir)
			if err != nil {
				return nil, err
			}
			logger.Debug("Knowledge loaded", "knowledge_id", kc.KnowledgeID, "chunks", n)
			mux.Handle(kc.KnowledgeID, memory)
		case config.BackendQdrant:
			client, err := knowledge.NewQdrantClient(embedders[kc.EmbeddingModel], func(o *knowledge.QdrantOptions) {
				o.URL = kc.URL
				o.APIKey = kc.APIKey
				o.MinScore = kc.MinScore
				if kc.Collection != "" {
					o.Collections = map[string]string{kc.KnowledgeID: kc.Collection}
				}
				if kc.SourceField != "" {
					o.SourceField = kc.SourceField
				}
				if kc.TextField != "" {
					o.TextField = kc.TextField
				}
			})
			if err != nil {
				return nil, fmt.Errorf("knowledge %q: %w", kc.KnowledgeID, err)
			}
			mux.Handle(kc.KnowledgeID, client)
		default:
			return nil, fmt.Errorf("knowledge %q: unsupported backend %q", kc.KnowledgeID, kc.Backend)
		}
	}
	return mux, nil
}

// loadMemory indexes a memory backend directory. Relative dirs are walked
// through an fs.FS rooted at baseDir so source paths stay relative.
func loadMemory(store *knowledge.InMemoryStore, kc config.KnowledgeConfig, baseDir string) (int, error) {
	dir := filepath.ToSlash(filepath.Clean(kc.Dir))
	if filepath.IsAbs(kc.Dir) || !fs.ValidPath(dir) {
		return store.LoadDir(kc.KnowledgeID, kc.Dir, kc.Extensions, kc.ChunkSize)
	}
	if baseDir == "" {
		baseDir = "."
	}
	return store.LoadFS(kc.KnowledgeID, os.DirFS(baseDir), dir, kc.Extensions, kc.ChunkSize)
}

func buildRouter(args *config.RouterArgs, embedders map[string]core.Embedder, logger *logging.MeshLogger) (*router.Router, error) {
	if args == nil {
		return router.New(func(o *router.Options) { o.Logger = logger }), nil
	}
	var scorer router.Scorer
	if args.EmbeddingModel != "" {
		s, err := router.NewEmbeddingScorer(embedders[args.EmbeddingModel], args.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
		scorer = s
	}
	return router.New(func(o *router.Options) {
		if args.Threshold != nil {
			o.Threshold = *args.Threshold
		}
		if args.MaxFanout > 0 {
			o.MaxFanout = args.MaxFanout
		}
		o.ContextTurns = args.ContextTurns
		if scorer != nil {
			o.Scorer = scorer
		}
		o.Logger = logger
	}), nil
}

func (m *Mesh) buildSessions(args *config.ContextArgs, opts *Options) (*session.Manager, error) {
	if args == nil {
		args = &config.ContextArgs{}
	}
	store := opts.TurnStore
	if store == nil {
		switch {
		case args.RedisURL != "":
			rs, err := session.NewRedisStoreFromURL(args.RedisURL, func(o *session.RedisOptions) { o.TTL = args.SessionTTL })
			if err != nil {
				return nil, err
			}
			m.closers = append(m.closers, rs.Close)
			store = rs
		default:
			maxSessions := args.MaxSessions
			if maxSessions <= 0 {
				maxSessions = session.DefaultMaxSessions
			}
			ms, err := session.NewInMemoryStore(maxSessions)
			if err != nil {
				return nil, err
			}
			store = ms
		}
	}
	return session.NewManager(store, func(o *session.Options) {
		if args.MaxTurns > 0 {
			o.MaxTurns = args.MaxTurns
		}
		o.Logger = opts.Logger
	}), nil
}
