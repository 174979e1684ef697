package agentgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragengine/internal/memory/episodic"
	"ragengine/internal/memory/ltm"
	"ragengine/internal/model"
	"ragengine/internal/obslog"
	"ragengine/internal/stepstream"
)

// loadMemory pulls STM conversation history and similar LTM interactions
// for the query, seeds retrieved_docs from speculative_hint if present,
// and checks episodic memory for a reusable prior trace.
func (g *Graph) loadMemory(ctx context.Context, state *model.AgentState, queryVec []float32, stream *stepstream.Stream) {
	var parts []string

	if g.STM != nil {
		msgs, err := g.STM.GetConversationHistory(ctx, state.SessionID)
		if err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("stm_read_failed")
		} else if len(msgs) > 0 {
			parts = append(parts, summarizeMessages(msgs))
		}
	}

	if g.LTM != nil && len(queryVec) > 0 {
		interactions, err := g.LTM.RetrieveSimilarInteractions(ctx, queryVec, 3, g.Cfg.LTMMinSuccessScore)
		if err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("ltm_read_failed")
		} else if len(interactions) > 0 {
			parts = append(parts, summarizeInteractions(interactions))
		}

		patterns, err := g.LTM.RetrievePatterns(ctx, queryVec, "", g.Cfg.LTMMinSuccessScore, 3)
		if err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("ltm_pattern_read_failed")
		} else if len(patterns) > 0 {
			parts = append(parts, summarizePatterns(patterns))
		}
	}

	metadata := map[string]any{}
	if state.SpeculativeHint != nil {
		for _, s := range state.SpeculativeHint.Sources {
			tagged := s
			if tagged.Metadata == nil {
				tagged.Metadata = map[string]any{}
			} else {
				m := make(map[string]any, len(tagged.Metadata)+1)
				for k, v := range tagged.Metadata {
					m[k] = v
				}
				tagged.Metadata = m
			}
			tagged.Metadata["path"] = string(model.PathSpeculative)
			state.RetrievedDocs = model.DedupRetrieved(state.RetrievedDocs, tagged)
		}
		metadata["incorporate_speculative"] = true
		parts = append(parts, "initial response to validate: "+state.SpeculativeHint.Response)
	}

	state.MemoryContext = strings.Join(parts, "\n")
	emitStep(state, stream, stepstream.NewStep(model.StepMemory, memoryContent(state.MemoryContext), metadata))

	if g.Episodic != nil && len(queryVec) > 0 {
		if ep, ok := g.Episodic.FindReusable(ctx, queryVec); ok {
			sim := episodic.Similarity(queryVec, ep.QueryEmbedding)
			emitStep(state, stream, stepstream.NewStep(model.StepInfo, "found a similar prior episode", map[string]any{
				"episode_similarity": sim,
				"reuse_count":        ep.ReuseCount,
			}))
		}
	}
}

func memoryContent(ctx string) string {
	if ctx == "" {
		return "no prior context"
	}
	return ctx
}

func summarizeMessages(msgs []model.Message) string {
	if len(msgs) == 0 {
		return ""
	}
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

func summarizeInteractions(in []model.Interaction) string {
	var sb strings.Builder
	sb.WriteString("similar past interactions:\n")
	for _, i := range in {
		fmt.Fprintf(&sb, "- %q -> %q (success %.2f)\n", i.QueryText, i.Response, i.SuccessScore)
	}
	return sb.String()
}

// toolSequencePayload serializes the tools a run invoked, in order, as
// the reusable part of a learned strategy.
func toolSequencePayload(history []model.ActionResult) string {
	tools := make([]string, 0, len(history))
	for _, ar := range history {
		tools = append(tools, string(ar.Action.Tool))
	}
	b, err := json.Marshal(map[string]any{"tools": tools})
	if err != nil {
		return ""
	}
	return string(b)
}

func summarizePatterns(patterns []model.LearnedPattern) string {
	var sb strings.Builder
	sb.WriteString("learned strategies:\n")
	for _, p := range patterns {
		fmt.Fprintf(&sb, "- [%s] %s (score %.2f)\n", p.PatternType, p.Description, p.SuccessScore)
	}
	return sb.String()
}

// saveMemory consolidates this Query's result into STM and LTM, and
// stores a reusable episode when the run succeeded with sufficient
// confidence. Memory errors are
// logged and swallowed; they never fail the pipeline.
func (g *Graph) saveMemory(ctx context.Context, state *model.AgentState, queryVec []float32, stream *stepstream.Stream) {
	contributingPaths := []string{string(model.PathAgentic)}
	path := model.PathAgentic
	if state.SpeculativeHint != nil {
		contributingPaths = []string{string(model.PathSpeculative), string(model.PathAgentic)}
		path = model.PathHybrid
	}

	now := timeNow()
	if g.STM != nil {
		userMsg := model.Message{Role: model.RoleUser, Content: state.Query, Timestamp: now, Metadata: map[string]any{"path": string(path)}}
		assistantMsg := model.Message{Role: model.RoleAssistant, Content: state.FinalResponse, Timestamp: now, Metadata: map[string]any{"path": string(path)}}
		if err := g.STM.AddMessage(ctx, state.SessionID, userMsg); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("stm_write_failed")
		}
		if err := g.STM.AddMessage(ctx, state.SessionID, assistantMsg); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("stm_write_failed")
		}
	}

	hasCitation := strings.Contains(state.FinalResponse, "[")
	score := ltm.ComputeSuccessScore(ltm.SuccessScoreInputs{
		SourceCount: len(state.RetrievedDocs),
		ActionCount: len(state.ActionHistory),
		HasCitation: hasCitation,
	})

	if g.LTM != nil && len(queryVec) > 0 {
		interaction := model.Interaction{
			QueryText:      state.Query,
			QueryEmbedding: queryVec,
			Response:       state.FinalResponse,
			SessionID:      state.SessionID,
			Timestamp:      now,
			SuccessScore:   score,
			SourceCount:    len(state.RetrievedDocs),
			ActionCount:    len(state.ActionHistory),
		}
		if err := g.LTM.SaveInteraction(ctx, interaction); err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("ltm_write_failed")
		}

		if state.Err == nil && score >= g.Cfg.MinEpisodeConfidence && len(state.ActionHistory) > 0 {
			pattern := model.LearnedPattern{
				PatternType:          "tool_sequence",
				Description:          state.Query,
				DescriptionEmbedding: queryVec,
				Payload:              toolSequencePayload(state.ActionHistory),
				SuccessScore:         score,
			}
			if err := g.LTM.SavePattern(ctx, pattern); err != nil {
				obslog.FromContext(ctx).Error().Err(err).Msg("ltm_pattern_write_failed")
			}
		}
	}

	if g.Episodic != nil && len(queryVec) > 0 {
		success := state.Err == nil && score >= g.Cfg.MinEpisodeConfidence
		if success {
			actions := make([]model.Action, 0, len(state.ActionHistory))
			for _, ar := range state.ActionHistory {
				actions = append(actions, ar.Action)
			}
			g.Episodic.Add(ctx, model.Episode{
				Query:             state.Query,
				QueryEmbedding:    queryVec,
				Actions:           actions,
				Success:           true,
				Confidence:        score,
				Iterations:        len(state.ActionHistory),
				RetrievedDocCount: len(state.RetrievedDocs),
				Timestamp:         now,
			})
		}
	}

	emitStep(state, stream, stepstream.NewStep(model.StepMemory, "consolidated to memory", map[string]any{
		"contributing_paths": contributingPaths,
		"path":               string(path),
		"success_score":      score,
	}))
}
