package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DarioTortorici/cinetech/core"
)

// grounding accumulates tool outputs across the tool-execution rounds
// of one run, deduplicated by movie id.
type grounding struct {
	refs    map[string]core.MovieRef
	results []core.RetrievalResult
	seen    map[string]bool

	// sawSuccess is set once any tool call contributed facts.
	sawSuccess bool

	// sawFailure is set when a retrieval-path tool failed, used to flag
	// degraded grounding in the output.
	sawFailure bool
}

func newGrounding() *grounding {
	return &grounding{
		refs: make(map[string]core.MovieRef),
		seen: make(map[string]bool),
	}
}

// addCall folds one dispatched tool call into the accumulator.
func (g *grounding) addCall(call *core.ToolCall) {
	if call.Err != nil {
		g.sawFailure = true
		return
	}
	result := call.Result
	if result == nil || !result.Success {
		return
	}

	if len(result.References) > 0 || len(result.Retrieved) > 0 {
		g.sawSuccess = true
	}
	for _, ref := range result.References {
		if existing, ok := g.refs[ref.MovieID]; !ok || ref.Similarity > existing.Similarity {
			g.refs[ref.MovieID] = ref
		}
	}
	for _, r := range result.Retrieved {
		if !g.seen[r.Document.ID] {
			g.seen[r.Document.ID] = true
			g.results = append(g.results, r)
		}
	}
}

// references returns the deduplicated refs, highest similarity first,
// ties broken by movie id ascending.
func (g *grounding) references() []core.MovieRef {
	refs := make([]core.MovieRef, 0, len(g.refs))
	for _, ref := range g.refs {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(a, b int) bool {
		if refs[a].Similarity != refs[b].Similarity {
			return refs[a].Similarity > refs[b].Similarity
		}
		return refs[a].MovieID < refs[b].MovieID
	})
	return refs
}

// contextBlock renders retrieved documents for the generation prompt,
// highest similarity first, truncated to the character budget. Most
// recently retrieved wins similarity ties so fresh results survive
// truncation.
func (g *grounding) contextBlock(budget int) string {
	if len(g.results) == 0 {
		return ""
	}

	ordered := make([]core.RetrievalResult, len(g.results))
	copy(ordered, g.results)
	// Reverse before the stable sort: later-retrieved results come
	// first among equals.
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Similarity > ordered[b].Similarity
	})

	var b strings.Builder
	b.WriteString("Movies retrieved from the catalog, most relevant first:\n")
	for i, r := range ordered {
		line := fmt.Sprintf("%d. %s (%d) — %s. Directed by %s. %s\n",
			i+1,
			r.Document.Title,
			r.Document.Year,
			strings.Join(r.Document.Genres, ", "),
			r.Document.Director,
			clip(r.Document.Overview, 240),
		)
		if b.Len()+len(line) > budget {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
