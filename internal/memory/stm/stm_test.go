package stm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/model"
)

func TestAddMessageAndGetConversationHistory(t *testing.T) {
	s := New(NewMemKV(), DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddMessage(ctx, "sess1", model.Message{Role: model.RoleUser, Content: "hi"}))
	require.NoError(t, s.AddMessage(ctx, "sess1", model.Message{Role: model.RoleAssistant, Content: "hello"}))

	hist, err := s.GetConversationHistory(ctx, "sess1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "hi", hist[0].Content)
	assert.Equal(t, "hello", hist[1].Content)
}

func TestGetConversationHistoryEmptyForUnknownSession(t *testing.T) {
	s := New(NewMemKV(), DefaultConfig())
	hist, err := s.GetConversationHistory(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSetWorkingAndGetWorking(t *testing.T) {
	s := New(NewMemKV(), DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.SetWorking(ctx, "sess1", "top_k", 5))
	require.NoError(t, s.SetWorking(ctx, "sess1", "mode", "hybrid"))

	working, err := s.GetWorking(ctx, "sess1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, working["top_k"])
	assert.Equal(t, "hybrid", working["mode"])
}

func TestClearSessionRemovesBothKeys(t *testing.T) {
	s := New(NewMemKV(), DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddMessage(ctx, "sess1", model.Message{Role: model.RoleUser, Content: "hi"}))
	require.NoError(t, s.SetWorking(ctx, "sess1", "k", "v"))

	require.NoError(t, s.ClearSession(ctx, "sess1"))

	hist, err := s.GetConversationHistory(ctx, "sess1")
	require.NoError(t, err)
	assert.Empty(t, hist)

	working, err := s.GetWorking(ctx, "sess1")
	require.NoError(t, err)
	assert.Empty(t, working)
}

func TestClearSessionOnUnknownSessionIsNoop(t *testing.T) {
	s := New(NewMemKV(), DefaultConfig())
	assert.NoError(t, s.ClearSession(context.Background(), "never-existed"))
}

func TestExpiredMessagesAreNotReturned(t *testing.T) {
	kv := NewMemKV()
	s := New(kv, Config{TTL: time.Millisecond})
	ctx := context.Background()
	require.NoError(t, s.AddMessage(ctx, "sess1", model.Message{Role: model.RoleUser, Content: "hi"}))
	time.Sleep(5 * time.Millisecond)

	hist, err := s.GetConversationHistory(ctx, "sess1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}
