package convo

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is the idle expiry for conversations and dialogue context,
	// enforced by the cache, not by application code.
	DefaultTTL = 30 * time.Minute

	// DefaultMaxTurns caps stored history length; oldest turns are dropped.
	DefaultMaxTurns = 40
)

// Store is keyed, TTL-bounded conversation storage.
//
// Implementations must degrade gracefully: if the backing cache is
// unreachable, Load returns an empty history and Save is a silent no-op;
// conversations become stateless rather than the assistant failing.
type Store interface {
	// Load returns the stored history, or nil when absent or unreachable.
	Load(ctx context.Context, userID, convID string) []Turn

	// Save replaces the history wholesale, truncated to the max length,
	// and resets the TTL.
	Save(ctx context.Context, userID, convID string, turns []Turn)

	// Delete removes a conversation.
	Delete(ctx context.Context, userID, convID string)

	// LoadContext returns the user's dialogue context, zero-valued when
	// absent or unreachable.
	LoadContext(ctx context.Context, userID string) DialogueContext

	// SaveContext replaces the dialogue context and resets its TTL.
	SaveContext(ctx context.Context, userID string, dc DialogueContext)

	// ClearContext removes the dialogue context.
	ClearContext(ctx context.Context, userID string)
}

// Truncate drops the oldest turns so at most max remain, preserving order.
// The most recent turn is never dropped.
func Truncate(turns []Turn, max int) []Turn {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

// RedisStore is the production Store backed by a shared Redis cache.
type RedisStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	maxTurns int
}

// RedisConfig holds connection settings for the shared cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	MaxTurns int
}

// NewRedisStore creates a Redis-backed store. The connection is verified
// once at startup, but failure is not fatal: availability over
// consistency: a memoryless assistant beats one that cannot respond.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("conversation cache unreachable, running stateless until it returns",
			"addr", cfg.Addr, "error", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &RedisStore{rdb: rdb, ttl: ttl, maxTurns: maxTurns}
}

func convKey(userID, convID string) string {
	return "selam:conv:" + userID + ":" + convID
}

func ctxKey(userID string) string {
	return "selam:dctx:" + userID
}

func (s *RedisStore) Load(ctx context.Context, userID, convID string) []Turn {
	data, err := s.rdb.Get(ctx, convKey(userID, convID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("conversation load failed, treating as empty", "error", err)
		}
		return nil
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		slog.Warn("conversation payload corrupt, treating as empty", "error", err)
		return nil
	}
	return turns
}

func (s *RedisStore) Save(ctx context.Context, userID, convID string, turns []Turn) {
	turns = Truncate(turns, s.maxTurns)
	data, err := json.Marshal(turns)
	if err != nil {
		slog.Warn("conversation marshal failed, skipping save", "error", err)
		return
	}
	if err := s.rdb.Set(ctx, convKey(userID, convID), data, s.ttl).Err(); err != nil {
		slog.Warn("conversation save failed, continuing stateless", "error", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, userID, convID string) {
	if err := s.rdb.Del(ctx, convKey(userID, convID)).Err(); err != nil {
		slog.Warn("conversation delete failed", "error", err)
	}
}

func (s *RedisStore) LoadContext(ctx context.Context, userID string) DialogueContext {
	var dc DialogueContext
	data, err := s.rdb.Get(ctx, ctxKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("dialogue context load failed, treating as empty", "error", err)
		}
		return dc
	}
	if err := json.Unmarshal(data, &dc); err != nil {
		slog.Warn("dialogue context payload corrupt, treating as empty", "error", err)
		return DialogueContext{}
	}
	return dc
}

func (s *RedisStore) SaveContext(ctx context.Context, userID string, dc DialogueContext) {
	data, err := json.Marshal(dc)
	if err != nil {
		slog.Warn("dialogue context marshal failed, skipping save", "error", err)
		return
	}
	if err := s.rdb.Set(ctx, ctxKey(userID), data, s.ttl).Err(); err != nil {
		slog.Warn("dialogue context save failed", "error", err)
	}
}

func (s *RedisStore) ClearContext(ctx context.Context, userID string) {
	if err := s.rdb.Del(ctx, ctxKey(userID)).Err(); err != nil {
		slog.Warn("dialogue context clear failed", "error", err)
	}
}

// MemoryStore is an in-process Store for tests and single-node dev runs.
// No TTL: entries live for the process lifetime.
type MemoryStore struct {
	mu       sync.Mutex
	convs    map[string][]Turn
	contexts map[string]DialogueContext
	maxTurns int
}

func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{
		convs:    make(map[string][]Turn),
		contexts: make(map[string]DialogueContext),
		maxTurns: maxTurns,
	}
}

func (s *MemoryStore) Load(_ context.Context, userID, convID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.convs[convKey(userID, convID)]
	out := make([]Turn, len(stored))
	copy(out, stored)
	return out
}

func (s *MemoryStore) Save(_ context.Context, userID, convID string, turns []Turn) {
	turns = Truncate(turns, s.maxTurns)
	stored := make([]Turn, len(turns))
	copy(stored, turns)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[convKey(userID, convID)] = stored
}

func (s *MemoryStore) Delete(_ context.Context, userID, convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, convKey(userID, convID))
}

func (s *MemoryStore) LoadContext(_ context.Context, userID string) DialogueContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contexts[userID]
}

func (s *MemoryStore) SaveContext(_ context.Context, userID string, dc DialogueContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[userID] = dc
}

func (s *MemoryStore) ClearContext(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, userID)
}
