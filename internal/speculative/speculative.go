// Package speculative implements the fast path: a single-shot
// retrieve-then-generate response, used for queries simple enough not to
// warrant the full agent graph.
package speculative

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ragengine/internal/llmprovider"
	"ragengine/internal/memory/ltm"
	"ragengine/internal/model"
	"ragengine/internal/observation"
	"ragengine/internal/obslog"
	"ragengine/internal/retrieve"
	"ragengine/internal/stepstream"
)

// Retriever is the subset of the hybrid retriever's contract this path
// needs.
type Retriever interface {
	Search(ctx context.Context, query string, opt retrieve.Options, variants ...string) (retrieve.Response, error)
}

// STM is the subset of the short-term memory store the path reads and
// writes.
type STM interface {
	GetConversationHistory(ctx context.Context, session string) ([]model.Message, error)
	AddMessage(ctx context.Context, session string, m model.Message) error
}

// LTM is the consolidation surface of the long-term memory store.
type LTM interface {
	SaveInteraction(ctx context.Context, in model.Interaction) error
}

// Embedder is the minimal embedding surface consolidation needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Path runs the fast path: memory lookup, a single retrieval call, a
// direct generation, a response, and memory consolidation -- emitting
// exactly the [memory, action, observation, thought, response] step
// sequence. STM, LTM, and Embedder are optional; when absent the
// corresponding read or consolidation step is skipped.
type Path struct {
	retriever Retriever
	observer  *observation.Processor
	llm       llmprovider.Provider

	STM      STM
	LTM      LTM
	Embedder Embedder
}

// New builds a Path.
func New(retriever Retriever, observer *observation.Processor, llm llmprovider.Provider) *Path {
	return &Path{retriever: retriever, observer: observer, llm: llm}
}

const promptSourceLimit = 5

// Run executes the fast path for query, emitting steps onto stream as it
// progresses, and returns the final result. memoryContext, when empty,
// is loaded from STM.
func (p *Path) Run(ctx context.Context, query string, sessionID string, topK int, memoryContext string, stream *stepstream.Stream) (model.SpeculativeResult, error) {
	if topK <= 0 {
		topK = 10
	}

	if memoryContext == "" && p.STM != nil && sessionID != "" {
		if msgs, err := p.STM.GetConversationHistory(ctx, sessionID); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("stm_read_failed")
		} else if len(msgs) > 0 {
			memoryContext = summarizeMessages(msgs)
		}
	}
	if stream != nil {
		stream.Emit(stepstream.NewStep(model.StepMemory, "loading context", map[string]any{
			"session_id":  sessionID,
			"has_context": memoryContext != "",
		}))
	}

	action := model.Action{Tool: model.ToolVectorSearch, Input: map[string]any{"query": query, "top_k": topK}}
	resp, err := p.retriever.Search(ctx, query, retrieve.Options{TopK: topK})
	result := model.ActionResult{Action: action}
	if err != nil {
		result.Err = err
	} else {
		retrieved := make([]model.SourceChunk, 0, len(resp.Items))
		for _, it := range resp.Items {
			retrieved = append(retrieved, it.Chunk)
		}
		result.Retrieved = retrieved
	}
	if stream != nil {
		obs := summarizeRetrieval(result)
		stream.Emit(stepstream.NewStep(model.StepAction, fmt.Sprintf("vector_search(%q)", query), nil))
		stream.Emit(stepstream.NewStep(model.StepObservation, obs, map[string]any{"result_count": len(result.Retrieved)}))
	}
	if result.Err != nil {
		return model.SpeculativeResult{}, result.Err
	}

	observed := result.Retrieved
	if p.observer != nil {
		if out, oerr := p.observer.Process(ctx, query, result.Retrieved, nil); oerr == nil {
			observed = make([]model.SourceChunk, len(out))
			for i, o := range out {
				observed[i] = o.Chunk
			}
		}
	}

	thought := fmt.Sprintf("retrieved %d relevant sources, generating a direct response", len(observed))
	if stream != nil {
		stream.Emit(stepstream.NewStep(model.StepThought, thought, nil))
	}

	respText, err := p.generate(ctx, query, memoryContext, observed)
	if err != nil {
		return model.SpeculativeResult{}, err
	}

	confidence := float64(len(result.Retrieved)) / float64(topK)
	if confidence > 1.0 {
		confidence = 1.0
	}

	top := topSources(observed, promptSourceLimit)
	if stream != nil {
		refs := make([]map[string]any, len(top))
		for i, s := range top {
			refs[i] = map[string]any{"document_id": s.DocumentID, "document_name": s.DocumentName, "chunk_id": s.ChunkID, "score": s.Score}
		}
		stream.Emit(stepstream.NewStep(model.StepResponse, respText, map[string]any{
			"sources":         refs,
			"confidence":      confidence,
			"has_speculative": false,
			"path":            string(model.PathSpeculative),
		}))
	}

	p.consolidate(ctx, query, respText, sessionID, observed)

	return model.SpeculativeResult{Response: respText, Sources: observed, ConfidenceScore: confidence}, nil
}

// consolidate writes the exchange to STM and a scored interaction to LTM,
// both tagged path="speculative". Memory errors are logged and swallowed;
// they never fail the fast path.
func (p *Path) consolidate(ctx context.Context, query, response, sessionID string, sources []model.SourceChunk) {
	now := time.Now().UTC()
	if p.STM != nil && sessionID != "" {
		meta := func() map[string]any { return map[string]any{"path": string(model.PathSpeculative)} }
		if err := p.STM.AddMessage(ctx, sessionID, model.Message{Role: model.RoleUser, Content: query, Timestamp: now, Metadata: meta()}); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("stm_write_failed")
		}
		if err := p.STM.AddMessage(ctx, sessionID, model.Message{Role: model.RoleAssistant, Content: response, Timestamp: now, Metadata: meta()}); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("stm_write_failed")
		}
	}

	if p.LTM == nil || p.Embedder == nil {
		return
	}
	vec, err := p.Embedder.Embed(ctx, query)
	if err != nil {
		obslog.FromContext(ctx).Error().Err(err).Msg("ltm_embed_failed")
		return
	}
	score := ltm.ComputeSuccessScore(ltm.SuccessScoreInputs{
		SourceCount: len(sources),
		ActionCount: 1,
		HasCitation: strings.Contains(response, "["),
	})
	interaction := model.Interaction{
		QueryText:      query,
		QueryEmbedding: vec,
		Response:       response,
		SessionID:      sessionID,
		Timestamp:      now,
		SuccessScore:   score,
		SourceCount:    len(sources),
		ActionCount:    1,
	}
	if err := p.LTM.SaveInteraction(ctx, interaction); err != nil {
		obslog.FromContext(ctx).Error().Err(err).Msg("ltm_write_failed")
	}
}

func (p *Path) generate(ctx context.Context, query, memoryContext string, sources []model.SourceChunk) (string, error) {
	var sb strings.Builder
	for i, s := range topSources(sources, promptSourceLimit) {
		name := s.DocumentName
		if name == "" {
			name = s.DocumentID
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, name, s.Text)
	}
	messages := []llmprovider.Message{
		{Role: llmprovider.RoleSystem, Content: "Answer the user's question using only the provided sources. Cite sources as [n]."},
	}
	if memoryContext != "" {
		messages = append(messages, llmprovider.Message{Role: llmprovider.RoleSystem, Content: "Prior context: " + memoryContext})
	}
	messages = append(messages, llmprovider.Message{Role: llmprovider.RoleUser, Content: fmt.Sprintf("Sources:\n%s\nQuestion: %s", sb.String(), query)})
	return p.llm.Generate(ctx, messages, llmprovider.Params{})
}

// topSources returns the n highest-scoring chunks without reordering
// equal-score neighbors.
func topSources(sources []model.SourceChunk, n int) []model.SourceChunk {
	out := make([]model.SourceChunk, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func summarizeMessages(msgs []model.Message) string {
	n := len(msgs)
	if n > 5 {
		n = 5
	}
	recent := msgs[len(msgs)-n:]
	var sb strings.Builder
	sb.WriteString("recent conversation:\n")
	for _, m := range recent {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}

func summarizeRetrieval(r model.ActionResult) string {
	if r.Err != nil {
		return "retrieval failed: " + r.Err.Error()
	}
	return fmt.Sprintf("retrieved %d candidates", len(r.Retrieved))
}
