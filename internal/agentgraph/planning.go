package agentgraph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ragengine/internal/llmprovider"
	"ragengine/internal/model"
	"ragengine/internal/retry"
	"ragengine/internal/stepstream"
)

var stepHeadingRE = regexp.MustCompile(`(?i)^\s*step\s+\d+\s*:\s*(.*)$`)

// cotPlanning calls the LLM with a Chain-of-Thought planning prompt and
// parses numbered "Step N: ..." headings (plus their bullet bodies) into
// PlanningSteps. Parse failure falls back to a single-step plan.
func (g *Graph) cotPlanning(ctx context.Context, state *model.AgentState, stream *stepstream.Stream) {
	messages := []llmprovider.Message{
		{Role: llmprovider.RoleSystem, Content: "Decompose the user's question into an ordered list of concrete research steps. Format each as \"Step N: <title>\" followed by one or more bullet lines."},
		{Role: llmprovider.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", state.MemoryContext, state.Query)},
	}

	var steps []string
	if g.LLM != nil {
		text, err := retry.Do(ctx, g.Cfg.Retry, "cot_planning", func(ctx context.Context) (string, error) {
			return g.LLM.Generate(ctx, messages, llmprovider.Params{})
		})
		if err == nil {
			steps = parsePlanningSteps(text)
		}
	}
	if len(steps) == 0 {
		steps = []string{"Search vector database for relevant information"}
	}
	state.PlanningSteps = steps

	emitStep(state, stream, stepstream.NewStep(model.StepPlanning, strings.Join(steps, "\n"), map[string]any{"step_count": len(steps)}))
}

// parsePlanningSteps extracts "Step N: <heading>" blocks from text,
// folding any following non-heading lines (bullets) into that step's
// content.
func parsePlanningSteps(text string) []string {
	lines := strings.Split(text, "\n")
	var steps []string
	var current strings.Builder
	has := false

	flush := func() {
		if has {
			steps = append(steps, strings.TrimSpace(current.String()))
			current.Reset()
			has = false
		}
	}

	for _, line := range lines {
		if m := stepHeadingRE.FindStringSubmatch(line); m != nil {
			flush()
			current.WriteString(strings.TrimSpace(m[1]))
			has = true
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !has {
			continue
		}
		current.WriteString(" ")
		current.WriteString(strings.TrimPrefix(trimmed, "-"))
	}
	flush()
	return steps
}
