package knowledge

import (
	"sort"

	"github.com/hupe1980/ragmesh/core"
)

// Merge combines several ranked results into one list ordered by score
// (ties keep input order), dropping passages with identical source path and
// text, truncated to topK.
func Merge(topK int, results ...core.RetrievalResult) core.RetrievalResult {
	type key struct{ src, text string }
	seen := make(map[key]struct{})
	var merged []core.Passage
	for _, r := range results {
		for _, p := range r.Passages {
			k := key{p.SourcePath, p.Text}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, p)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return core.RetrievalResult{Passages: merged}
}
