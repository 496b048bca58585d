package core

// AgentClass is the closed set of agent kinds a configuration table can declare.
type AgentClass string

const (
	// ClassRouter selects specialists for a query.
	ClassRouter AgentClass = "Router"
	// ClassRetrievalSpecialist answers from its knowledge bases.
	ClassRetrievalSpecialist AgentClass = "RetrievalSpecialist"
	// ClassSummarizer merges candidate answers.
	ClassSummarizer AgentClass = "Summarizer"
	// ClassContextManager owns per-session history.
	ClassContextManager AgentClass = "ContextManager"
	// ClassFallback answers when nothing else can.
	ClassFallback AgentClass = "Fallback"
)

// Valid reports whether c is one of the known classes.
func (c AgentClass) Valid() bool {
	switch c {
	case ClassRouter, ClassRetrievalSpecialist, ClassSummarizer, ClassContextManager, ClassFallback:
		return true
	default:
		return false
	}
}

// DefaultImportanceWeight is applied when a profile does not set one.
const DefaultImportanceWeight = 1.0

// SuffixRewrite replaces a literal trailing From with To on a path remainder.
type SuffixRewrite struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to"   yaml:"to"`
}

// PathRewriteRule maps an internal document path to a public citation URL.
//
// LocalPattern is a literal prefix. The remainder after the prefix is
// optionally suffix-rewritten and then substituted into URLTemplate at the
// "{path}" placeholder.
type PathRewriteRule struct {
	LocalPattern  string         `json:"local_pattern"            yaml:"local_pattern"`
	SuffixRewrite *SuffixRewrite `json:"suffix_rewrite,omitempty" yaml:"suffix_rewrite,omitempty"`
	URLTemplate   string         `json:"url_template"             yaml:"url_template"`
}

// AgentProfile is the normalized, immutable description of one configured
// agent. Profiles are produced by the config builder and shared read-only by
// every component; nothing mutates a profile after load.
type AgentProfile struct {
	ID          string
	Class       AgentClass
	Name        string
	Description string
	Instruction string

	KnowledgeIDs            []string
	TopK                    int
	RecentTurnsForRetrieval int
	ImportanceWeight        float64
	LogRetrieval            bool
	UseMemory               bool

	PrimaryModel   string
	SecondaryModel string

	CitationRules []PathRewriteRule
	// DefaultRuleKey names a shared rule set used when CitationRules is empty.
	DefaultRuleKey string
}

// HasRetrieval reports whether the profile queries any knowledge base.
func (p *AgentProfile) HasRetrieval() bool { return len(p.KnowledgeIDs) > 0 }

// Weight returns the importance weight, falling back to DefaultImportanceWeight.
func (p *AgentProfile) Weight() float64 {
	if p.ImportanceWeight <= 0 {
		return DefaultImportanceWeight
	}
	return p.ImportanceWeight
}

// DisplayName prefers Name over ID.
func (p *AgentProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
