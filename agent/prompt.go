package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/util"
)

// HistoryHeader starts the folded conversation history in a prompt.
const HistoryHeader = "## Conversation History"

// renderInstruction expands template markers in a profile instruction.
func renderInstruction(p *core.AgentProfile) (string, error) {
	return util.RenderTemplate(p.Instruction, map[string]any{
		"id":          p.ID,
		"name":        p.DisplayName(),
		"description": p.Description,
		"knowledge":   p.KnowledgeIDs,
	})
}

// BuildPrompt assembles a grounded prompt. Passages are numbered from 1 in
// the instructions; the history and the query are folded into one user
// message.
func BuildPrompt(instruction string, passages []core.Passage, history []core.Turn, query string) core.Prompt {
	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(instruction))
	if len(passages) > 0 {
		if sys.Len() > 0 {
			sys.WriteString("\n\n")
		}
		sys.WriteString("## Reference Passages\n")
		sys.WriteString("Answer using the passages below and cite them with their [n] marker.\n")
		for i, p := range passages {
			fmt.Fprintf(&sys, "\n[%d] (%s)\n%s\n", i+1, p.SourcePath, strings.TrimSpace(p.Text))
		}
	}
	return core.Prompt{
		Instructions: sys.String(),
		Messages:     []core.Message{{Role: core.RoleUser, Text: foldHistory(history, query)}},
	}
}

func foldHistory(history []core.Turn, query string) string {
	if len(history) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString(HistoryHeader)
	b.WriteString("\n")
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}
	b.WriteString("\n")
	b.WriteString(query)
	return b.String()
}

var markerRe = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// ReferencedPassages returns the 0-based indices of passages cited with [n]
// (or [n, m]) markers in text, first reference first, without duplicates.
// Markers outside 1..n are ignored.
func ReferencedPassages(text string, n int) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		for _, f := range strings.Split(m[1], ",") {
			i, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || i < 1 || i > n {
				continue
			}
			if _, dup := seen[i-1]; dup {
				continue
			}
			seen[i-1] = struct{}{}
			out = append(out, i-1)
		}
	}
	return out
}

// retrievalQuery prepends the last n turns to the query.
func retrievalQuery(query string, history []core.Turn, n int) string {
	if n <= 0 || len(history) == 0 {
		return query
	}
	if n > len(history) {
		n = len(history)
	}
	parts := make([]string, 0, n+1)
	for _, t := range history[len(history)-n:] {
		parts = append(parts, t.Text)
	}
	return strings.Join(append(parts, query), "\n")
}
