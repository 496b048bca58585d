package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/ragmesh/citation"
	"github.com/hupe1980/ragmesh/core"
)

// DefaultTopK is used when a specialist omits similarity_top_k.
const DefaultTopK = 5

// AgentEntry is one raw agent declaration. Args stay undecoded until the
// class is known.
type AgentEntry struct {
	ID    string
	Class core.AgentClass
	Args  yaml.Node
}

// AgentTable keeps agent declarations in file order; the order breaks
// routing ties.
type AgentTable []AgentEntry

// UnmarshalYAML implements yaml.Unmarshaler for a mapping of agent id to
// {class, args}.
func (t *AgentTable) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: agents must be a mapping of agent id to {class, args}", value.Line)
	}
	out := make(AgentTable, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var raw struct {
			Class core.AgentClass `yaml:"class"`
			Args  yaml.Node       `yaml:"args"`
		}
		if err := value.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("agent %q: %w", value.Content[i].Value, err)
		}
		out = append(out, AgentEntry{ID: value.Content[i].Value, Class: raw.Class, Args: raw.Args})
	}
	*t = out
	return nil
}

// AgentArgs are the args every agent class understands.
type AgentArgs struct {
	Name                     string                 `yaml:"name"`
	Description              string                 `yaml:"description"`
	SysPrompt                string                 `yaml:"sys_prompt"`
	ModelConfigName          string                 `yaml:"model_config_name"`
	SecondaryModelConfigName string                 `yaml:"secondary_model_config_name"`
	KnowledgeIDList          []string               `yaml:"knowledge_id_list"         validate:"dive,required"`
	SimilarityTopK           int                    `yaml:"similarity_top_k"          validate:"gte=0"`
	RecentNMemForRetrieve    int                    `yaml:"recent_n_mem_for_retrieve" validate:"gte=0"`
	ImportanceAmplification  *float64               `yaml:"importance_amplification"  validate:"omitempty,gt=0"`
	LogRetrieval             bool                   `yaml:"log_retrieval"`
	UseMemory                *bool                  `yaml:"use_memory"`
	WebPathMapping           []core.PathRewriteRule `yaml:"web_path_mapping"`
	DefaultWebPathKey        string                 `yaml:"default_web_path_key"`
}

// RouterArgs extend AgentArgs for the Router class.
type RouterArgs struct {
	AgentArgs      `yaml:",inline"`
	Threshold      *float64 `yaml:"threshold"       validate:"omitempty,gte=0"`
	MaxFanout      int      `yaml:"max_fanout"      validate:"gte=0"`
	ContextTurns   int      `yaml:"context_turns"   validate:"gte=0"`
	EmbeddingModel string   `yaml:"embedding_model"`
	CacheSize      int      `yaml:"cache_size"      validate:"gte=0"`
}

// ContextArgs extend AgentArgs for the ContextManager class.
type ContextArgs struct {
	AgentArgs   `yaml:",inline"`
	MaxTurns    int           `yaml:"max_turns"    validate:"gte=0"`
	MaxSessions int           `yaml:"max_sessions" validate:"gte=0"`
	RedisURL    string        `yaml:"redis_url"`
	SessionTTL  time.Duration `yaml:"session_ttl"  validate:"gte=0"`
}

// Table is the normalized, validated agent table.
type Table struct {
	// Profiles in declaration order.
	Profiles []*core.AgentProfile
	// Router and Context hold the settings of the Router and ContextManager
	// agents; nil when the class is not declared.
	Router  *RouterArgs
	Context *ContextArgs
	// Mapper serves the shared path_mappings rule sets.
	Mapper *citation.Mapper
}

// Profile returns the profile with the given id.
func (t *Table) Profile(id string) (*core.AgentProfile, bool) {
	for _, p := range t.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

type builder struct {
	cfg       *Config
	models    map[string]ModelConfig
	knowledge map[string]struct{}
	table     *Table
}

type buildFunc func(b *builder, e AgentEntry) (*core.AgentProfile, error)

// builders is the closed registry of agent classes.
var builders = map[core.AgentClass]buildFunc{
	core.ClassRouter:              (*builder).buildRouter,
	core.ClassRetrievalSpecialist: (*builder).buildSpecialist,
	core.ClassSummarizer:          (*builder).buildModelAgent,
	core.ClassContextManager:      (*builder).buildContext,
	core.ClassFallback:            (*builder).buildModelAgent,
}

// Build validates every agent declaration and normalizes it into an
// immutable profile. All malformed agents are reported together, each
// wrapping core.ErrInvalidProfile.
func (c *Config) Build() (*Table, error) {
	b := &builder{
		cfg:       c,
		models:    make(map[string]ModelConfig, len(c.Models)),
		knowledge: make(map[string]struct{}, len(c.Knowledge)),
		table:     &Table{Mapper: citation.NewMapper(c.PathMappings)},
	}
	for _, m := range c.Models {
		b.models[m.ConfigName] = m
	}
	for _, k := range c.Knowledge {
		b.knowledge[k.KnowledgeID] = struct{}{}
	}

	var errs []error
	for _, e := range c.Agents {
		fn, ok := builders[e.Class]
		if !ok {
			errs = append(errs, invalid(e.ID, "unknown class %q", e.Class))
			continue
		}
		p, err := fn(b, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.table.Profiles = append(b.table.Profiles, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b.table, nil
}

func invalid(id, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", core.ErrInvalidProfile, id, fmt.Sprintf(format, args...))
}

func (b *builder) decode(e AgentEntry, out any) error {
	if !e.Args.IsZero() {
		if err := e.Args.Decode(out); err != nil {
			return invalid(e.ID, "%v", err)
		}
	}
	if err := validate.Struct(out); err != nil {
		return invalid(e.ID, "%v", describe(err))
	}
	return nil
}

// profile normalizes the common args.
func (b *builder) profile(e AgentEntry, a *AgentArgs) (*core.AgentProfile, error) {
	p := &core.AgentProfile{
		ID:                      e.ID,
		Class:                   e.Class,
		Name:                    a.Name,
		Description:             a.Description,
		Instruction:             a.SysPrompt,
		KnowledgeIDs:            append([]string(nil), a.KnowledgeIDList...),
		TopK:                    a.SimilarityTopK,
		RecentTurnsForRetrieval: a.RecentNMemForRetrieve,
		ImportanceWeight:        core.DefaultImportanceWeight,
		LogRetrieval:            a.LogRetrieval,
		UseMemory:               a.UseMemory == nil || *a.UseMemory,
		PrimaryModel:            a.ModelConfigName,
		SecondaryModel:          a.SecondaryModelConfigName,
		CitationRules:           append([]core.PathRewriteRule(nil), a.WebPathMapping...),
		DefaultRuleKey:          a.DefaultWebPathKey,
	}
	if p.Name == "" {
		p.Name = e.ID
	}
	if a.ImportanceAmplification != nil {
		p.ImportanceWeight = *a.ImportanceAmplification
	}
	if err := b.checkModel(e.ID, "model_config_name", p.PrimaryModel); err != nil {
		return nil, err
	}
	if err := b.checkModel(e.ID, "secondary_model_config_name", p.SecondaryModel); err != nil {
		return nil, err
	}
	if err := validateRules(p.CitationRules); err != nil {
		return nil, invalid(e.ID, "web_path_mapping: %v", err)
	}
	if p.DefaultRuleKey != "" && !b.table.Mapper.Has(p.DefaultRuleKey) {
		return nil, invalid(e.ID, "default_web_path_key %q is not a path_mappings key", p.DefaultRuleKey)
	}
	return p, nil
}

func (b *builder) checkModel(id, field, name string) error {
	if name == "" {
		return nil
	}
	m, ok := b.models[name]
	if !ok {
		return invalid(id, "%s %q is not a configured model", field, name)
	}
	if m.IsEmbedding() {
		return invalid(id, "%s %q is an embedding model", field, name)
	}
	return nil
}

func (b *builder) buildSpecialist(e AgentEntry) (*core.AgentProfile, error) {
	var a AgentArgs
	if err := b.decode(e, &a); err != nil {
		return nil, err
	}
	if len(a.KnowledgeIDList) == 0 {
		return nil, invalid(e.ID, "knowledge_id_list must not be empty")
	}
	for _, kid := range a.KnowledgeIDList {
		if _, ok := b.knowledge[kid]; !ok {
			return nil, invalid(e.ID, "knowledge id %q is not configured", kid)
		}
	}
	if a.SimilarityTopK == 0 {
		a.SimilarityTopK = DefaultTopK
	}
	if a.SimilarityTopK > b.cfg.MaxTopK {
		return nil, invalid(e.ID, "similarity_top_k %d exceeds max_top_k %d", a.SimilarityTopK, b.cfg.MaxTopK)
	}
	if a.ModelConfigName == "" {
		return nil, invalid(e.ID, "model_config_name is required")
	}
	if a.Description == "" {
		return nil, invalid(e.ID, "description is required for routing")
	}
	return b.profile(e, &a)
}

// buildModelAgent builds Fallback and Summarizer profiles; a model is
// optional for both.
func (b *builder) buildModelAgent(e AgentEntry) (*core.AgentProfile, error) {
	var a AgentArgs
	if err := b.decode(e, &a); err != nil {
		return nil, err
	}
	if len(a.KnowledgeIDList) > 0 {
		return nil, invalid(e.ID, "%s agents never retrieve; remove knowledge_id_list", e.Class)
	}
	if err := b.unique(e); err != nil {
		return nil, err
	}
	return b.profile(e, &a)
}

func (b *builder) buildRouter(e AgentEntry) (*core.AgentProfile, error) {
	var a RouterArgs
	if err := b.decode(e, &a); err != nil {
		return nil, err
	}
	if err := b.unique(e); err != nil {
		return nil, err
	}
	if a.EmbeddingModel != "" {
		if m, ok := b.models[a.EmbeddingModel]; !ok || !m.IsEmbedding() {
			return nil, invalid(e.ID, "embedding_model %q is not an embedding model", a.EmbeddingModel)
		}
	}
	b.table.Router = &a
	return b.profile(e, &a.AgentArgs)
}

func (b *builder) buildContext(e AgentEntry) (*core.AgentProfile, error) {
	var a ContextArgs
	if err := b.decode(e, &a); err != nil {
		return nil, err
	}
	if err := b.unique(e); err != nil {
		return nil, err
	}
	b.table.Context = &a
	return b.profile(e, &a.AgentArgs)
}

// unique rejects a second agent of a singleton class.
func (b *builder) unique(e AgentEntry) error {
	for _, p := range b.table.Profiles {
		if p.Class == e.Class {
			return invalid(e.ID, "only one %s agent is allowed, %q already declared", e.Class, p.ID)
		}
	}
	return nil
}
