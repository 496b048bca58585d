package core

// CandidateAnswer is one specialist's answer for the current query. It is
// created by a specialist and consumed by the summarizer; nobody mutates it
// after creation.
type CandidateAnswer struct {
	AgentID          string   `json:"agent_id"`
	Text             string   `json:"text"`
	Citations        []string `json:"citations"`
	Confidence       float64  `json:"confidence"`
	ImportanceWeight float64  `json:"importance_weight"`
	// Model is the model config that produced Text (primary or secondary).
	Model string `json:"model,omitempty"`
}

// FinalAnswer is the merged, user-facing response of one query.
type FinalAnswer struct {
	Text         string   `json:"text"`
	Citations    []string `json:"citations"`
	Agents       []string `json:"agents"`
	FallbackUsed bool     `json:"fallback_used"`
	InvocationID string   `json:"invocation_id"`
}

// AppendUnique appends values not yet present in dst, preserving first-seen
// order. seen is updated in place and may be nil.
func AppendUnique(dst []string, seen map[string]struct{}, values ...string) []string {
	if seen == nil {
		seen = make(map[string]struct{}, len(dst)+len(values))
		for _, v := range dst {
			seen[v] = struct{}{}
		}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
