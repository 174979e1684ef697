package embedgw

import (
	"context"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragengine/internal/engerr"
	"ragengine/internal/obslog"
)

const defaultEmbeddingModel = string(sdk.EmbeddingModelTextEmbedding3Small)
const defaultEmbeddingDim = 1536

// OpenAIEmbedder adapts openai-go/v2's Embeddings endpoint to the inner
// Embedder surface Gateway wraps, the same option-based client
// construction llmprovider's OpenAIProvider uses.
type OpenAIEmbedder struct {
	sdk   sdk.Client
	model string
	dim   int
}

// NewOpenAIEmbedder builds an OpenAIEmbedder. baseURL lets it target an
// OpenAI-compatible embeddings endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	m := strings.TrimSpace(model)
	if m == "" {
		m = defaultEmbeddingModel
	}
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}
	return &OpenAIEmbedder{sdk: sdk.NewClient(opts...), model: m, dim: dim}
}

func (e *OpenAIEmbedder) Name() string      { return "openai:" + e.model }
func (e *OpenAIEmbedder) Dimension() int    { return e.dim }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, engerr.New(engerr.ModelError, "OpenAIEmbedder.Embed", nil)
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	copy(inputs, texts)

	resp, err := e.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: e.model,
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		obslog.FromContext(ctx).Error().Err(err).Str("model", e.model).Msg("openai_embed_error")
		return nil, engerr.New(engerr.ModelError, "OpenAIEmbedder.EmbedBatch", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
