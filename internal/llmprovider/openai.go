package llmprovider

import (
	"context"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"ragengine/internal/engerr"
	"ragengine/internal/obslog"
)

const defaultOpenAIModel = string(sdk.ChatModelGPT4o)

// OpenAIProvider adapts openai-go/v2 to Provider, for self-hosted or
// OpenAI-compatible chat-completions endpoints.
type OpenAIProvider struct {
	sdk          sdk.Client
	defaultModel string
}

// NewOpenAI builds an OpenAIProvider. baseURL lets it target an
// OpenAI-compatible local server.
func NewOpenAI(apiKey, baseURL, defaultModel string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(defaultModel)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{sdk: sdk.NewClient(opts...), defaultModel: model}
}

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = p.defaultModel
	}

	converted := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			converted = append(converted, sdk.SystemMessage(m.Content))
		case RoleAssistant:
			converted = append(converted, sdk.AssistantMessage(m.Content))
		default:
			converted = append(converted, sdk.UserMessage(m.Content))
		}
	}

	req := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: converted,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = param.NewOpt(params.MaxTokens)
	}

	log := obslog.FromContext(ctx)
	start := time.Now()
	resp, err := p.sdk.Chat.Completions.New(ctx, req)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("openai_generate_error")
		return "", engerr.New(engerr.ModelError, "OpenAIProvider.Generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
