package embedgw

import (
	"context"
	"strings"

	"ragengine/internal/engerr"
)

// MultiVectorEmbedder produces a late-interaction style query embedding:
// one vector per token window rather than a single pooled vector, scored
// against per-patch document vectors by the image backend.
type MultiVectorEmbedder interface {
	EmbedMulti(ctx context.Context, text string) ([][]float32, error)
}

// WindowMulti derives a multi-vector query embedding from a plain
// single-vector Embedder by embedding overlapping token windows of the
// query. The full text is always the first vector, so a one-window query
// degenerates to the ordinary dense embedding.
type WindowMulti struct {
	inner      Embedder
	windowSize int
	stride     int
}

// NewWindowMulti builds a WindowMulti over inner. windowSize/stride <= 0
// select the defaults (8-token windows, stride 4).
func NewWindowMulti(inner Embedder, windowSize, stride int) *WindowMulti {
	if windowSize <= 0 {
		windowSize = 8
	}
	if stride <= 0 {
		stride = windowSize / 2
	}
	if stride <= 0 {
		stride = 1
	}
	return &WindowMulti{inner: inner, windowSize: windowSize, stride: stride}
}

// EmbedMulti implements MultiVectorEmbedder.
func (w *WindowMulti) EmbedMulti(ctx context.Context, text string) ([][]float32, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, engerr.New(engerr.InvalidInput, "WindowMulti.EmbedMulti", nil)
	}

	windows := []string{strings.Join(words, " ")}
	if len(words) > w.windowSize {
		for start := 0; start < len(words); start += w.stride {
			end := start + w.windowSize
			if end > len(words) {
				end = len(words)
			}
			windows = append(windows, strings.Join(words[start:end], " "))
			if end == len(words) {
				break
			}
		}
	}
	return w.inner.EmbedBatch(ctx, windows)
}
