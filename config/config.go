package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/ragmesh/core"
)

// Model types accepted in the models section.
const (
	ModelOpenAIChat      = "openai_chat"
	ModelOpenAIEmbedding = "openai_embedding"
	ModelAnthropicChat   = "anthropic_chat"
	ModelOllamaChat      = "ollama_chat"
	ModelOllamaEmbedding = "ollama_embedding"
	ModelMock            = "mock"
)

// Knowledge backends accepted in the knowledge section.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// DefaultMaxTopK is the system maximum for similarity_top_k.
const DefaultMaxTopK = 20

// Config is the top-level configuration file.
type Config struct {
	Models       []ModelConfig                     `yaml:"models"        validate:"dive"`
	Knowledge    []KnowledgeConfig                 `yaml:"knowledge"     validate:"dive"`
	PathMappings map[string][]core.PathRewriteRule `yaml:"path_mappings"`
	Agents       AgentTable                        `yaml:"agents"`
	Orchestrator OrchestratorConfig                `yaml:"orchestrator"`
	MaxTopK      int                               `yaml:"max_top_k"     validate:"gte=1"`
	Logger       LoggerConfig                      `yaml:"logger"`
	Tracer       TracerConfig                      `yaml:"tracer"`
}

// ModelConfig declares one named model configuration.
type ModelConfig struct {
	ConfigName string `yaml:"config_name" validate:"required"`
	ModelType  string `yaml:"model_type"  validate:"required,oneof=openai_chat openai_embedding anthropic_chat ollama_chat ollama_embedding mock"`
	ModelName  string `yaml:"model_name"  validate:"required_unless=ModelType mock"`
	// Host is the Ollama host or the base URL of an OpenAI/Anthropic
	// compatible endpoint.
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	// Options are passed through as Ollama generation options.
	Options     map[string]any `yaml:"options"`
	KeepAlive   string         `yaml:"keep_alive"`
	Temperature *float64       `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int            `yaml:"max_tokens"  validate:"gte=0"`
	// Timeout bounds one call; RequestsPerSecond and Burst rate limit it.
	Timeout           time.Duration `yaml:"timeout"             validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst"               validate:"gte=0"`
	// Response is the canned reply of a mock model.
	Response string `yaml:"response"`
}

// IsEmbedding reports whether the model produces embeddings.
func (m ModelConfig) IsEmbedding() bool {
	return m.ModelType == ModelOpenAIEmbedding || m.ModelType == ModelOllamaEmbedding
}

// KnowledgeConfig declares one knowledge base.
type KnowledgeConfig struct {
	KnowledgeID string `yaml:"knowledge_id" validate:"required"`
	Backend     string `yaml:"backend"      validate:"required,oneof=memory qdrant"`

	// memory backend
	Dir        string   `yaml:"dir"        validate:"required_if=Backend memory"`
	Extensions []string `yaml:"extensions"`
	ChunkSize  int      `yaml:"chunk_size" validate:"gte=0"`

	// qdrant backend
	URL            string  `yaml:"url"             validate:"required_if=Backend qdrant"`
	Collection     string  `yaml:"collection"`
	APIKey         string  `yaml:"api_key"`
	EmbeddingModel string  `yaml:"embedding_model" validate:"required_if=Backend qdrant"`
	MinScore       float64 `yaml:"min_score"       validate:"gte=0"`
	SourceField    string  `yaml:"source_field"`
	TextField      string  `yaml:"text_field"`
}

// OrchestratorConfig tunes query orchestration.
type OrchestratorConfig struct {
	SpecialistTimeout     time.Duration `yaml:"specialist_timeout"        validate:"gte=0"`
	HistoryWindow         int           `yaml:"history_window"            validate:"gte=0"`
	MaxModelCallsPerQuery int           `yaml:"max_model_calls_per_query" validate:"gte=0"`
	MaxConcurrentQueries  int           `yaml:"max_concurrent_queries"    validate:"gte=0"`
	// MaxQueryLength rejects longer queries before routing (0 disables).
	MaxQueryLength int `yaml:"max_query_length" validate:"gte=0"`
	// FloorText replaces the fallback agent's canned answer.
	FloorText string `yaml:"floor_text"`
}

// LoggerConfig selects the log level and format.
type LoggerConfig struct {
	Level  string `yaml:"level"  validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// TracerConfig selects the span exporter.
type TracerConfig struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=noop stdout"`
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	return &Config{
		MaxTopK: DefaultMaxTopK,
		Orchestrator: OrchestratorConfig{
			SpecialistTimeout: 30 * time.Second,
			HistoryWindow:     10,
		},
		Logger: LoggerConfig{Level: "info", Format: "text"},
		Tracer: TracerConfig{Exporter: "noop"},
	}
}

// Load reads a YAML config file, applies env var overrides and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, overrides and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps RAGMESH_* env vars to config fields and expands
// ${VAR} references in secrets and hosts.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAGMESH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RAGMESH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("RAGMESH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	for i := range cfg.Models {
		cfg.Models[i].APIKey = os.ExpandEnv(cfg.Models[i].APIKey)
		cfg.Models[i].Host = os.ExpandEnv(cfg.Models[i].Host)
	}
	for i := range cfg.Knowledge {
		cfg.Knowledge[i].APIKey = os.ExpandEnv(cfg.Knowledge[i].APIKey)
		cfg.Knowledge[i].URL = os.ExpandEnv(cfg.Knowledge[i].URL)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross references between sections.
// Agent args are validated when the agent table is built.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", describe(err))
	}

	var errs []error
	models := make(map[string]ModelConfig, len(cfg.Models))
	for _, m := range cfg.Models {
		if _, dup := models[m.ConfigName]; dup {
			errs = append(errs, fmt.Errorf("duplicate model config_name %q", m.ConfigName))
		}
		models[m.ConfigName] = m
	}
	seen := make(map[string]struct{}, len(cfg.Knowledge))
	for _, k := range cfg.Knowledge {
		if _, dup := seen[k.KnowledgeID]; dup {
			errs = append(errs, fmt.Errorf("duplicate knowledge_id %q", k.KnowledgeID))
		}
		seen[k.KnowledgeID] = struct{}{}
		if k.EmbeddingModel != "" {
			if m, ok := models[k.EmbeddingModel]; !ok || !m.IsEmbedding() {
				errs = append(errs, fmt.Errorf("knowledge %q: embedding_model %q is not an embedding model", k.KnowledgeID, k.EmbeddingModel))
			}
		}
	}
	for key, rules := range cfg.PathMappings {
		if err := validateRules(rules); err != nil {
			errs = append(errs, fmt.Errorf("path_mappings %q: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validateRules(rules []core.PathRewriteRule) error {
	for i, r := range rules {
		if strings.TrimSpace(r.URLTemplate) == "" {
			return fmt.Errorf("rule %d: url_template is required", i)
		}
		if r.SuffixRewrite != nil && r.SuffixRewrite.From == "" {
			return fmt.Errorf("rule %d: suffix_rewrite.from is required", i)
		}
	}
	return nil
}

// describe turns validator errors into one readable line per field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
