package agentgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ragengine/internal/llmprovider"
	"ragengine/internal/model"
	"ragengine/internal/obslog"
	"ragengine/internal/retry"
	"ragengine/internal/stepstream"
)

var (
	thoughtRE = regexp.MustCompile(`(?i)Thought:\s*(.*)`)
	actionRE  = regexp.MustCompile(`(?i)Action:\s*(.*)`)
	inputRE   = regexp.MustCompile(`(?i)Action Input:\s*(.*)`)
)

var validTools = map[model.ToolName]struct{}{
	model.ToolVectorSearch: {},
	model.ToolLocalData:    {},
	model.ToolWebSearch:    {},
}

// reactReasoning builds a ReAct prompt for the next planning step and
// parses the LLM's Thought/Action/Action Input block into state's
// CurrentAction. Once every planning step has an action_history entry,
// it emits a closing thought instead of selecting an action and reports
// actionTaken=false so the driver skips straight to reflect.
func (g *Graph) reactReasoning(ctx context.Context, state *model.AgentState, stream *stepstream.Stream) (actionTaken bool) {
	if len(state.ActionHistory) >= len(state.PlanningSteps) {
		state.CurrentAction = nil
		emitStep(state, stream, stepstream.NewStep(model.StepThought, "enough information gathered, moving to synthesis", nil))
		return false
	}

	nextStep := state.PlanningSteps[len(state.ActionHistory)]
	messages := []llmprovider.Message{
		{Role: llmprovider.RoleSystem, Content: "You select one tool call per turn. Respond with exactly:\nThought: <reasoning>\nAction: vector_search|local_data|web_search\nAction Input: <JSON object>"},
		{Role: llmprovider.RoleUser, Content: fmt.Sprintf("Plan step: %s\nActions taken so far: %d\nDocuments retrieved so far: %d\nQuestion: %s",
			nextStep, len(state.ActionHistory), len(state.RetrievedDocs), state.Query)},
	}

	if g.LLM == nil {
		emitStep(state, stream, stepstream.NewStep(model.StepThought, nextStep, nil))
		state.CurrentAction = &model.Action{Tool: model.ToolVectorSearch, Input: map[string]any{"query": state.Query}, Thought: nextStep}
		return true
	}

	text, err := retry.Do(ctx, g.Cfg.Retry, "react_reasoning", func(ctx context.Context) (string, error) {
		return g.LLM.Generate(ctx, messages, llmprovider.Params{})
	})
	if err != nil {
		obslog.FromContext(ctx).Error().Err(err).Msg("react_reasoning_llm_failed")
		emitStep(state, stream, stepstream.NewStep(model.StepError, "reasoning failed, defaulting to vector search: "+err.Error(), nil))
		state.CurrentAction = &model.Action{Tool: model.ToolVectorSearch, Input: map[string]any{"query": state.Query}, Thought: nextStep}
		return true
	}

	thought, action := parseReactBlock(text, state.Query)
	emitStep(state, stream, stepstream.NewStep(model.StepThought, thought, nil))
	action.Thought = thought
	state.CurrentAction = &action
	return true
}

// parseReactBlock extracts Thought/Action/Action Input lines. An
// unrecognized Action is logged and normalizes to vector_search;
// unparsable Action Input falls back to {"query": <raw>}.
func parseReactBlock(text, fallbackQuery string) (string, model.Action) {
	thought := firstMatch(thoughtRE, text)
	rawAction := firstMatch(actionRE, text)
	rawInput := firstMatch(inputRE, text)

	tool := model.ToolName(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(rawAction)), " ", "_"))
	if _, ok := validTools[tool]; !ok {
		obslog.FromContext(context.Background()).Warn().Str("action", rawAction).Msg("react_unknown_tool_fallback")
		tool = model.ToolVectorSearch
	}

	var input map[string]any
	if rawInput != "" {
		if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
			input = map[string]any{"query": rawInput}
		}
	}
	if input == nil {
		input = map[string]any{"query": fallbackQuery}
	}
	if thought == "" {
		thought = "continuing investigation"
	}
	return thought, model.Action{Tool: tool, Input: input}
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(m[1], "\n", 2)[0])
}
