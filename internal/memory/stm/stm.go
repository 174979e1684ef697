// Package stm implements Short-Term Memory: a session-scoped,
// TTL-bound message log and working-memory map backed by a KV store.
package stm

import (
	"context"
	"encoding/json"
	"time"

	"ragengine/internal/model"
)

// KVStore is the consumed interface: append-to-list,
// read-list, hset/hgetall, delete, expire; TTL required. There is no
// single-field hash read; working memory is read whole via HGetAll.
type KVStore interface {
	RPush(ctx context.Context, key string, value string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Delete(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Config holds the store's tunables.
type Config struct {
	TTL time.Duration
}

// DefaultConfig uses the standard one-hour session TTL.
func DefaultConfig() Config {
	return Config{TTL: 3600 * time.Second}
}

// Store implements the STM contract over a KVStore, using the key scheme
// stm:messages:{session}, stm:working:{session}.
type Store struct {
	kv  KVStore
	cfg Config
}

// New builds a Store.
func New(kv KVStore, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Store{kv: kv, cfg: cfg}
}

func messagesKey(session string) string { return "stm:messages:" + session }
func workingKey(session string) string  { return "stm:working:" + session }

// AddMessage appends m to the session's message log and refreshes TTL on
// that key.
func (s *Store) AddMessage(ctx context.Context, session string, m model.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := messagesKey(session)
	if err := s.kv.RPush(ctx, key, string(b)); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, s.cfg.TTL)
}

// GetConversationHistory reads the full ordered message log for session.
// An expired/missing session returns an empty slice, not an error.
func (s *Store) GetConversationHistory(ctx context.Context, session string) ([]model.Message, error) {
	raws, err := s.kv.LRange(ctx, messagesKey(session), 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(raws))
	for _, raw := range raws {
		var m model.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SetWorking stores a working-memory value under field, refreshing TTL.
func (s *Store) SetWorking(ctx context.Context, session, field string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := workingKey(session)
	if err := s.kv.HSet(ctx, key, field, string(b)); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, s.cfg.TTL)
}

// GetWorking reads all working-memory values for session.
func (s *Store) GetWorking(ctx context.Context, session string) (map[string]any, error) {
	raw, err := s.kv.HGetAll(ctx, workingKey(session))
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = v
		}
		out[k] = val
	}
	return out, nil
}

// ClearSession deletes both keys for session. A two-key delete counts as
// success even if one key was already absent; clearing a
// nonexistent session is a no-op that returns success.
func (s *Store) ClearSession(ctx context.Context, session string) error {
	return s.kv.Delete(ctx, messagesKey(session), workingKey(session))
}
