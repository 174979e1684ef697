package agentgraph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ragengine/internal/llmprovider"
	"ragengine/internal/model"
	"ragengine/internal/obslog"
	"ragengine/internal/retry"
	"ragengine/internal/stepstream"
)

var decisionRE = regexp.MustCompile(`(?i)Decision:\s*(continue|synthesize|end)`)

// reflect asks the LLM whether to keep iterating, move to synthesis, or
// stop outright. Forced transitions (driven by action_history length
// against max_iterations/planning_steps, and the empty-docs terminal
// case) are applied by the caller in graph.go's Run loop, keeping the transition table in one place.
func (g *Graph) reflect(ctx context.Context, state *model.AgentState, stream *stepstream.Stream) model.ReflectionDecision {
	decision := model.ReflectContinue

	if g.LLM != nil {
		messages := []llmprovider.Message{
			{Role: llmprovider.RoleSystem, Content: "Decide whether to keep gathering information. Respond with exactly one line: \"Decision: continue\", \"Decision: synthesize\", or \"Decision: end\"."},
			{Role: llmprovider.RoleUser, Content: fmt.Sprintf("Question: %s\nActions so far: %d\nDocuments retrieved: %d\nLast observation: %s",
				state.Query, len(state.ActionHistory), len(state.RetrievedDocs), lastObservation(state))},
		}
		text, err := retry.Do(ctx, g.Cfg.Retry, "reflect", func(ctx context.Context) (string, error) {
			return g.LLM.Generate(ctx, messages, llmprovider.Params{})
		})
		if err != nil {
			obslog.FromContext(ctx).Error().Err(err).Msg("reflect_llm_failed")
		} else if m := decisionRE.FindStringSubmatch(text); len(m) == 2 {
			decision = model.ReflectionDecision(strings.ToLower(m[1]))
		}
	}

	emitStep(state, stream, stepstream.NewStep(model.StepReflection, string(decision), map[string]any{
		"action_count":    len(state.ActionHistory),
		"retrieved_count": len(state.RetrievedDocs),
	}))
	return decision
}

func lastObservation(state *model.AgentState) string {
	if len(state.ActionHistory) == 0 {
		return "none"
	}
	return state.ActionHistory[len(state.ActionHistory)-1].Observation
}
