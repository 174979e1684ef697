// Package engine implements the Query Classifier & Dispatcher as
// the module's single external entrypoint: process_query(query,
// session_id, top_k, speculative_hint) -> async stream of Step.
// It decides fast-vs-slow path, enforces the per-query
// wall-clock timeout, and feeds the Quality Monitor.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"ragengine/internal/agentgraph"
	"ragengine/internal/classifier"
	"ragengine/internal/config"
	"ragengine/internal/engerr"
	"ragengine/internal/model"
	"ragengine/internal/obslog"
	"ragengine/internal/quality"
	"ragengine/internal/speculative"
	"ragengine/internal/stepstream"
)

// Engine wires the Speculative Path and the Agent Graph
// behind the classifier's dispatch rule.
type Engine struct {
	Speculative *speculative.Path
	Agent       *agentgraph.Graph
	Quality     *quality.Monitor
	Cfg         config.Config
}

// New builds an Engine.
func New(spec *speculative.Path, agent *agentgraph.Graph, q *quality.Monitor, cfg config.Config) *Engine {
	return &Engine{Speculative: spec, Agent: agent, Quality: q, Cfg: cfg}
}

const (
	minTopK = 1
	maxTopK = 100
)

// ProcessQuery validates query/top_k and, if valid, returns a Stream that
// a background goroutine will populate with Steps as the classifier's
// chosen path runs. An invalid query or top_k fails synchronously with
// no Stream and no Step emitted.
func (e *Engine) ProcessQuery(ctx context.Context, query, sessionID string, topK int, hint *model.SpeculativeResult) (*stepstream.Stream, error) {
	if strings.TrimSpace(query) == "" {
		return nil, engerr.New(engerr.InvalidInput, "engine.ProcessQuery", errors.New("empty query"))
	}
	if topK < minTopK || topK > maxTopK {
		return nil, engerr.New(engerr.InvalidInput, "engine.ProcessQuery", errors.New("top_k out of range"))
	}

	timeout := e.Cfg.QueryTimeout()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	stream := stepstream.New(tctx)

	go func() {
		defer cancel()
		defer stream.Close()
		e.dispatch(stream.Context(), query, sessionID, topK, hint, stream)
		if err := stream.Context().Err(); err != nil {
			e.emitTimeoutOrCancel(stream, err)
		}
	}()

	return stream, nil
}

func (e *Engine) emitTimeoutOrCancel(stream *stepstream.Stream, err error) {
	content := "cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		content = "query timed out"
	}
	stream.Emit(stepstream.NewStep(model.StepError, content, nil))
}

// dispatch applies the complexity rule: simple queries run only the
// speculative path; medium/complex queries run the agent graph, seeded
// with speculative_hint when the caller supplied one.
func (e *Engine) dispatch(ctx context.Context, query, sessionID string, topK int, hint *model.SpeculativeResult, stream *stepstream.Stream) {
	cls := classifier.Classify(query)
	start := time.Now()

	switch cls {
	case classifier.Simple:
		e.runSpeculative(ctx, query, sessionID, topK, stream, start)
	default:
		e.runAgentic(ctx, query, sessionID, topK, hint, stream, start)
	}
}

func (e *Engine) runSpeculative(ctx context.Context, query, sessionID string, topK int, stream *stepstream.Stream, start time.Time) {
	if e.Speculative == nil {
		stream.Emit(stepstream.NewStep(model.StepResponse, "no speculative path configured", map[string]any{"sources": []map[string]any{}}))
		return
	}
	result, err := e.Speculative.Run(ctx, query, sessionID, topK, "", stream)
	if err != nil {
		obslog.FromContext(ctx).Error().Err(err).Msg("speculative_path_failed")
		stream.Emit(stepstream.NewStep(model.StepError, "speculative path failed: "+err.Error(), nil))
		return
	}
	e.recordQuality(query, "speculative", start, result.Sources)
}

func (e *Engine) runAgentic(ctx context.Context, query, sessionID string, topK int, hint *model.SpeculativeResult, stream *stepstream.Stream, start time.Time) {
	if e.Agent == nil {
		stream.Emit(stepstream.NewStep(model.StepResponse, "no agent graph configured", map[string]any{"sources": []map[string]any{}}))
		return
	}
	state := e.Agent.Run(ctx, query, sessionID, topK, hint, stream)
	mode := "agentic"
	if hint != nil {
		mode = "hybrid"
	}
	e.recordQuality(query, mode, start, state.RetrievedDocs)
}

func (e *Engine) recordQuality(query, mode string, start time.Time, sources []model.SourceChunk) {
	if e.Quality == nil {
		return
	}
	scores := make([]float64, len(sources))
	for i, s := range sources {
		scores[i] = s.Score
	}
	e.Quality.RecordSearch(query, mode, time.Since(start), scores)
}
