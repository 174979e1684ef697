package llmprovider

import (
	"context"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ragengine/internal/engerr"
	"ragengine/internal/obslog"
)

const defaultMaxTokens int64 = 1024

// AnthropicProvider adapts anthropic-sdk-go to Provider.
type AnthropicProvider struct {
	sdk          anthropic.Client
	defaultModel string
}

// NewAnthropic builds an AnthropicProvider. apiKey/baseURL follow the SDK's
// own option conventions; an empty baseURL uses the SDK default.
func NewAnthropic(apiKey, baseURL, defaultModel string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(defaultModel)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicProvider{sdk: anthropic.NewClient(opts...), defaultModel: model}
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var system string
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	log := obslog.FromContext(ctx)
	start := time.Now()
	resp, err := p.sdk.Messages.New(ctx, req)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("anthropic_generate_error")
		return "", engerr.New(engerr.ModelError, "AnthropicProvider.Generate", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
