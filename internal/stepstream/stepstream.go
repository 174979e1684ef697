// Package stepstream implements the Step Stream: an ordered,
// backpressure-cooperative, cancellation-aware channel of model.Step
// values produced over the lifetime of a single Query.
package stepstream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ragengine/internal/model"
)

// Stream is the producer/consumer handle for one Query's Step Stream.
// The channel buffer is 1: the producer never gets more than one node's
// worth of Steps ahead of the consumer.
type Stream struct {
	ch     chan model.Step
	cancel context.CancelFunc
	ctx    context.Context
}

// New creates a Stream bound to ctx. Cancelling ctx (or calling Cancel)
// propagates to any in-flight call selecting on Done() at its next
// suspension point; Close does not cancel.
func New(ctx context.Context) *Stream {
	cctx, cancel := context.WithCancel(ctx)
	return &Stream{ch: make(chan model.Step, 1), cancel: cancel, ctx: cctx}
}

// Done returns the stream's cancellation signal.
func (s *Stream) Done() <-chan struct{} { return s.ctx.Done() }

// Context returns the stream-scoped context; producers should pass this
// (or a context derived from it) to every backend/LLM call they make so
// cancellation reaches in-flight calls.
func (s *Stream) Context() context.Context { return s.ctx }

// Emit pushes a Step, blocking cooperatively until the consumer reads it
// or the stream is cancelled. Returns false if the stream was cancelled
// before the Step could be delivered.
func (s *Stream) Emit(step model.Step) bool {
	select {
	case s.ch <- step:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Next blocks for the consumer side, returning (step, true) or
// (zero, false) once the stream is closed and drained. Cancel alone does
// not end Next; it returns false only after Close.
func (s *Stream) Next() (model.Step, bool) {
	step, ok := <-s.ch
	return step, ok
}

// Close signals completion to the consumer; must be called exactly once
// by the producer when done (successfully or not).
func (s *Stream) Close() {
	close(s.ch)
}

// Cancel is called by the consumer to abandon the stream early; it
// cancels s.Context() so in-flight tool/LLM calls observe cancellation
// at their next suspension point.
func (s *Stream) Cancel() {
	s.cancel()
}

// NewStep builds a model.Step with a fresh id of the form
// "<kind>_<8hex>".
func NewStep(kind model.StepKind, content string, metadata map[string]any) model.Step {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return model.Step{
		StepID:    string(kind) + "_" + uuid.New().String()[:8],
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
