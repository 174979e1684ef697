// Package agentgraph implements the Agent Graph: a bounded
// ReAct+CoT state machine over model.AgentState. Nodes are pure
// transformations of AgentState plus an effect channel (the Step
// Stream); the transition table below is the single source of truth for
// the graph's control flow.
package agentgraph

import (
	"context"

	"golang.org/x/sync/semaphore"

	"ragengine/internal/engerr"
	"ragengine/internal/llmprovider"
	"ragengine/internal/memory/episodic"
	"ragengine/internal/model"
	"ragengine/internal/observation"
	"ragengine/internal/rerank"
	"ragengine/internal/retrieve"
	"ragengine/internal/retry"
	"ragengine/internal/stepstream"
	"ragengine/internal/tools"
)

// Retriever is the subset of the hybrid retriever's contract this graph
// needs (same shape speculative.Retriever uses).
type Retriever interface {
	Search(ctx context.Context, query string, opt retrieve.Options, variants ...string) (retrieve.Response, error)
}

// STM is the subset of the short-term memory store the graph reads and
// writes.
type STM interface {
	GetConversationHistory(ctx context.Context, session string) ([]model.Message, error)
	AddMessage(ctx context.Context, session string, m model.Message) error
}

// LTM is the subset of the long-term memory store the graph reads and
// writes: past interactions for recall, learned patterns for strategy
// reuse.
type LTM interface {
	RetrieveSimilarInteractions(ctx context.Context, queryVec []float32, topK int, minSuccessScore float64) ([]model.Interaction, error)
	SaveInteraction(ctx context.Context, in model.Interaction) error
	RetrievePatterns(ctx context.Context, queryVec []float32, patternType string, minSuccessScore float64, limit int) ([]model.LearnedPattern, error)
	SavePattern(ctx context.Context, p model.LearnedPattern) error
}

// Embedder is the minimal embedding surface the graph needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the graph's tunables.
type Config struct {
	MaxIterations        int
	LTMMinSuccessScore   float64
	MinEpisodeConfidence float64
	Retry                retry.Config
}

// DefaultConfig caps the loop at 10 iterations, filters LTM recall at
// success score 0.6, and stores episodes only at confidence 0.7+.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        10,
		LTMMinSuccessScore:   0.6,
		MinEpisodeConfidence: 0.7,
		Retry:                retry.DefaultConfig(),
	}
}

// maxParallelExecutions bounds concurrent tool executions across all
// queries served by one Graph.
const maxParallelExecutions = 3

// Graph wires every dependency the ReAct+CoT loop calls through the
// retry envelope: retrieval, reranking, observation filtering,
// memory (STM/LTM/episodic), the two auxiliary tools, and the LLM.
type Graph struct {
	Retriever Retriever
	Reranker  *rerank.Reranker
	Observer  *observation.Processor
	STM       STM
	LTM       LTM
	Episodic  *episodic.Cache
	Embedder  Embedder
	Local     tools.LocalBackend
	Web       tools.WebBackend
	LLM       llmprovider.Provider
	Cfg       Config

	execSem *semaphore.Weighted
}

// New builds a Graph, filling in DefaultConfig where Cfg is the zero
// value.
func New(cfg Config) *Graph {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.MinEpisodeConfidence <= 0 {
		cfg.MinEpisodeConfidence = DefaultConfig().MinEpisodeConfidence
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Base == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Graph{Cfg: cfg, execSem: semaphore.NewWeighted(maxParallelExecutions)}
}

// Run drives one Query through the full state machine: load_memory ->
// cot_planning -> [react_reasoning -> execute_action -> reflect]* ->
// synthesize -> save_memory, honoring the forced transitions and the
// direct reflect->end edge. It returns the terminal
// AgentState; stream (if non-nil) receives every Step in
// ReasoningSteps, in the same order.
func (g *Graph) Run(ctx context.Context, query, sessionID string, topK int, hint *model.SpeculativeResult, stream *stepstream.Stream) model.AgentState {
	state := model.AgentState{
		Query:              query,
		SessionID:          sessionID,
		TopK:               topK,
		ReflectionDecision: model.ReflectContinue,
		SpeculativeHint:    hint,
		MaxIterations:      g.Cfg.MaxIterations,
		WorkingMemory:      map[string]any{},
	}

	var queryVec []float32
	if g.Embedder != nil {
		if v, err := g.Embedder.Embed(ctx, query); err == nil {
			queryVec = v
		}
	}

	g.loadMemory(ctx, &state, queryVec, stream)
	if cancelled(ctx) {
		return g.emitCancelled(&state, stream)
	}

	g.cotPlanning(ctx, &state, stream)
	if cancelled(ctx) {
		return g.emitCancelled(&state, stream)
	}

	for {
		if len(state.ActionHistory) >= state.MaxIterations {
			break
		}
		actionTaken := g.reactReasoning(ctx, &state, stream)
		if cancelled(ctx) {
			return g.emitCancelled(&state, stream)
		}
		if actionTaken {
			g.executeAction(ctx, &state, stream)
			if cancelled(ctx) {
				return g.emitCancelled(&state, stream)
			}
		}

		decision := g.reflect(ctx, &state, stream)
		if cancelled(ctx) {
			return g.emitCancelled(&state, stream)
		}

		if len(state.ActionHistory) >= state.MaxIterations {
			decision = model.ReflectSynthesize
		}
		if len(state.ActionHistory) >= len(state.PlanningSteps) && decision == model.ReflectContinue {
			decision = model.ReflectSynthesize
		}
		state.ReflectionDecision = decision

		if decision == model.ReflectEnd && len(state.RetrievedDocs) == 0 {
			g.emitTerminalError(&state, stream)
			return state
		}
		if decision == model.ReflectSynthesize || decision == model.ReflectEnd {
			break
		}
		// decision == continue: loop back to react_reasoning.
	}

	g.synthesize(ctx, &state, stream)
	if cancelled(ctx) {
		return g.emitCancelled(&state, stream)
	}
	g.saveMemory(ctx, &state, queryVec, stream)
	return state
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (g *Graph) emitCancelled(state *model.AgentState, stream *stepstream.Stream) model.AgentState {
	state.Err = engerr.New(engerr.Cancelled, "agentgraph.Run", nil)
	emitStep(state, stream, stepstream.NewStep(model.StepError, "cancelled", nil))
	return *state
}

func (g *Graph) emitTerminalError(state *model.AgentState, stream *stepstream.Stream) {
	state.FinalResponse = "I was unable to find any relevant information to answer this question."
	state.Err = engerr.New(engerr.Internal, "agentgraph.reflect", nil)
	emitStep(state, stream, stepstream.NewStep(model.StepResponse, state.FinalResponse, map[string]any{
		"sources":          []map[string]any{},
		"has_speculative":  state.SpeculativeHint != nil,
	}))
}

// emitStep appends step to ReasoningSteps and forwards it to stream,
// so every appended Step is the next Step emitted.
func emitStep(state *model.AgentState, stream *stepstream.Stream, step model.Step) {
	state.ReasoningSteps = append(state.ReasoningSteps, step)
	if stream != nil {
		stream.Emit(step)
	}
}
