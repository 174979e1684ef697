package agentgraph

import (
	"context"
	"fmt"

	"ragengine/internal/model"
	"ragengine/internal/obslog"
	"ragengine/internal/retrieve"
	"ragengine/internal/retry"
	"ragengine/internal/stepstream"
)

// executeAction dispatches state.CurrentAction to the matching tool,
// runs retrieval results through the reranker and observation processor
// when applicable, appends surviving chunks to RetrievedDocs (dedup by
// chunk id, keeping the max score), and always appends an ActionResult
// to ActionHistory -- even on error.
func (g *Graph) executeAction(ctx context.Context, state *model.AgentState, stream *stepstream.Stream) {
	action := *state.CurrentAction
	emitStep(state, stream, stepstream.NewStep(model.StepAction, fmt.Sprintf("%s: %s", action.Tool, action.Thought), map[string]any{"input": action.Input}))

	if g.execSem != nil {
		if err := g.execSem.Acquire(ctx, 1); err != nil {
			state.ActionHistory = append(state.ActionHistory, model.ActionResult{Action: action, Err: err})
			emitStep(state, stream, stepstream.NewStep(model.StepError, "tool execution cancelled: "+err.Error(), map[string]any{"tool": string(action.Tool)}))
			return
		}
		defer g.execSem.Release(1)
	}

	var result model.ActionResult
	switch action.Tool {
	case model.ToolVectorSearch:
		result = g.runVectorSearch(ctx, state, action)
	case model.ToolLocalData:
		result = g.runLocalData(ctx, state, action)
	case model.ToolWebSearch:
		result = g.runWebSearch(ctx, state, action)
	default:
		result = model.ActionResult{Action: action, Err: fmt.Errorf("unsupported tool %q", action.Tool)}
	}

	state.ActionHistory = append(state.ActionHistory, result)

	if result.Err != nil {
		emitStep(state, stream, stepstream.NewStep(model.StepError, "tool execution failed: "+result.Err.Error(), map[string]any{"tool": string(action.Tool)}))
		return
	}
	emitStep(state, stream, stepstream.NewStep(model.StepObservation, result.Observation, map[string]any{"tool": string(action.Tool), "result_count": len(result.Retrieved)}))
}

func queryFromInput(input map[string]any, fallback string) string {
	if v, ok := input["query"].(string); ok && v != "" {
		return v
	}
	return fallback
}

func (g *Graph) runVectorSearch(ctx context.Context, state *model.AgentState, action model.Action) model.ActionResult {
	query := queryFromInput(action.Input, state.Query)
	if g.Retriever == nil {
		return model.ActionResult{Action: action, Observation: "no retriever configured"}
	}

	resp, err := retry.Do(ctx, g.Cfg.Retry, "vector_search", func(ctx context.Context) (retrieve.Response, error) {
		return g.Retriever.Search(ctx, query, retrieve.Options{TopK: state.TopK})
	})
	if err != nil {
		return model.ActionResult{Action: action, Err: err}
	}

	candidates := make([]model.SourceChunk, 0, len(resp.Items))
	for _, it := range resp.Items {
		candidates = append(candidates, it.Chunk)
	}
	found := len(candidates)

	if g.Reranker != nil && len(candidates) > 0 {
		candidates = g.Reranker.Rerank(ctx, query, candidates, state.TopK, 0)
	}

	relevant := candidates
	var avgRelevance float64
	if g.Observer != nil {
		obs, oerr := g.Observer.Process(ctx, query, candidates, state.RetrievedDocs)
		if oerr != nil {
			obslog.FromContext(ctx).Error().Err(oerr).Msg("observation_process_failed")
		} else {
			relevant = make([]model.SourceChunk, len(obs))
			var sum float64
			for i, o := range obs {
				relevant[i] = o.Chunk
				sum += o.RelevanceScore
			}
			if len(obs) > 0 {
				avgRelevance = sum / float64(len(obs))
			}
		}
	}

	state.RetrievedDocs = model.DedupRetrieved(state.RetrievedDocs, relevant...)

	return model.ActionResult{
		Action:      action,
		Observation: fmt.Sprintf("Found %d documents, %d relevant after filtering (avg relevance %.2f)", found, len(relevant), avgRelevance),
		Retrieved:   relevant,
	}
}

func (g *Graph) runLocalData(ctx context.Context, state *model.AgentState, action model.Action) model.ActionResult {
	if g.Local == nil {
		return model.ActionResult{Action: action, Observation: "no local data backend configured"}
	}
	if path, ok := action.Input["file_path"].(string); ok && path != "" {
		content, err := g.Local.ReadFile(ctx, path)
		if err != nil {
			return model.ActionResult{Action: action, Err: err}
		}
		state.WorkingMemory[path] = content
		return model.ActionResult{Action: action, Observation: fmt.Sprintf("read %d bytes from %s", len(content), path)}
	}
	if q, ok := action.Input["database_query"].(string); ok && q != "" {
		rows, err := g.Local.Query(ctx, q)
		if err != nil {
			return model.ActionResult{Action: action, Err: err}
		}
		state.WorkingMemory["database_query:"+q] = rows
		return model.ActionResult{Action: action, Observation: fmt.Sprintf("query returned %d rows", len(rows))}
	}
	return model.ActionResult{Action: action, Observation: "local_data action missing file_path or database_query"}
}

func (g *Graph) runWebSearch(ctx context.Context, state *model.AgentState, action model.Action) model.ActionResult {
	query := queryFromInput(action.Input, state.Query)
	if g.Web == nil {
		return model.ActionResult{Action: action, Observation: "no web backend configured"}
	}

	chunks, err := retry.Do(ctx, g.Cfg.Retry, "web_search", func(ctx context.Context) ([]model.SourceChunk, error) {
		return g.Web.Search(ctx, query, state.TopK)
	})
	if err != nil {
		return model.ActionResult{Action: action, Err: err}
	}

	relevant := chunks
	if g.Observer != nil {
		if obs, oerr := g.Observer.Process(ctx, query, chunks, state.RetrievedDocs); oerr == nil {
			relevant = make([]model.SourceChunk, len(obs))
			for i, o := range obs {
				relevant[i] = o.Chunk
			}
		}
	}
	for i := range relevant {
		if relevant[i].Metadata == nil {
			relevant[i].Metadata = map[string]any{}
		}
		relevant[i].Metadata["source"] = "web"
	}
	state.RetrievedDocs = model.DedupRetrieved(state.RetrievedDocs, relevant...)

	return model.ActionResult{
		Action:      action,
		Observation: fmt.Sprintf("web search found %d results, %d kept", len(chunks), len(relevant)),
		Retrieved:   relevant,
	}
}
