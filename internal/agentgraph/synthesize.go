package agentgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ragengine/internal/llmprovider"
	"ragengine/internal/model"
	"ragengine/internal/obslog"
	"ragengine/internal/retry"
	"ragengine/internal/stepstream"
)

const synthesisChunkTruncateLen = 1000

// synthesize builds the final prompt -- the speculative hint (if any) as
// an initial response to validate, up to 10 retrieved chunks, an action
// summary, and the memory summary -- and calls the LLM. On failure it
// sets a deterministic fallback response instead of erroring the
// pipeline.
func (g *Graph) synthesize(ctx context.Context, state *model.AgentState, stream *stepstream.Stream) {
	sources := topSources(state.RetrievedDocs, 10)

	var sb strings.Builder
	if state.SpeculativeHint != nil {
		fmt.Fprintf(&sb, "Initial response to validate: %s\n\n", state.SpeculativeHint.Response)
	}
	sb.WriteString("Sources:\n")
	for i, s := range sources {
		if s.Modality == model.ModalityImage {
			fmt.Fprintf(&sb, "[%d] [IMAGE SOURCE] %s\n", i+1, s.DocumentName)
			continue
		}
		text := s.Text
		if len(text) > synthesisChunkTruncateLen {
			text = text[:synthesisChunkTruncateLen] + "..."
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, s.DocumentName, text)
	}
	sb.WriteString("\nActions taken:\n")
	for _, ar := range state.ActionHistory {
		fmt.Fprintf(&sb, "- %s: %s\n", ar.Action.Tool, ar.Observation)
	}
	if state.MemoryContext != "" {
		fmt.Fprintf(&sb, "\nMemory context:\n%s\n", state.MemoryContext)
	}

	messages := []llmprovider.Message{
		{Role: llmprovider.RoleSystem, Content: "Synthesize a grounded final answer from the sources and prior reasoning below. Cite sources as [n]."},
		{Role: llmprovider.RoleUser, Content: fmt.Sprintf("%s\nQuestion: %s", sb.String(), state.Query)},
	}

	response := ""
	if g.LLM != nil {
		text, err := retry.Do(ctx, g.Cfg.Retry, "synthesize", func(ctx context.Context) (string, error) {
			return g.LLM.Generate(ctx, messages, llmprovider.Params{})
		})
		if err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("synthesize_llm_failed")
			response = fmt.Sprintf("I encountered an error while synthesizing a final answer, but found %d documents. Error: %s", len(state.RetrievedDocs), err.Error())
		} else {
			response = text
		}
	} else {
		response = fmt.Sprintf("I encountered an error while synthesizing a final answer, but found %d documents. Error: no LLM configured", len(state.RetrievedDocs))
	}
	state.FinalResponse = response

	refs := make([]map[string]any, len(sources))
	for i, s := range sources {
		refs[i] = map[string]any{"document_id": s.DocumentID, "document_name": s.DocumentName, "chunk_id": s.ChunkID, "score": s.Score}
	}
	emitStep(state, stream, stepstream.NewStep(model.StepResponse, response, map[string]any{
		"sources":         refs,
		"has_speculative": state.SpeculativeHint != nil,
	}))
}

// topSources returns the n highest-scoring chunks, stable across
// equal-score neighbors so the original dedup order breaks ties.
func topSources(docs []model.SourceChunk, n int) []model.SourceChunk {
	out := make([]model.SourceChunk, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
