package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is the key prefix used when WithPrefix is not given.
const DefaultRedisPrefix = "logibot:session:"

// RedisStore keeps one JSON document per conversation.
type RedisStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Lister = (*RedisStore)(nil)
)

type RedisOption func(*RedisStore)

// WithTTL sets the expiration for sessions. Zero means no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to the Redis server at address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *goredis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) key(conversationID string) string {
	return r.prefix + conversationID
}

func (r *RedisStore) Get(ctx context.Context, conversationID string) (*models.Session, error) {
	return r.load(ctx, conversationID)
}

func (r *RedisStore) Start(ctx context.Context, conversationID string, flow models.FlowType, first models.StateType) (*models.Session, error) {
	return start(ctx, r, conversationID, flow, first)
}

func (r *RedisStore) Update(ctx context.Context, conversationID string, field models.FieldName, value string, next models.StateType) (*models.Session, error) {
	return mutate(ctx, r, conversationID, setField(field, value, next))
}

func (r *RedisStore) SetStep(ctx context.Context, conversationID string, next models.StateType) (*models.Session, error) {
	return mutate(ctx, r, conversationID, setStep(next))
}

func (r *RedisStore) AddAttachment(ctx context.Context, conversationID string, att models.Attachment) (*models.Session, error) {
	return mutate(ctx, r, conversationID, addAttachment(att))
}

func (r *RedisStore) Clear(ctx context.Context, conversationID string) error {
	return r.remove(ctx, conversationID)
}

// List scans the key prefix and loads each session. Keys that expire during the scan are skipped.
func (r *RedisStore) List(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		s, err := r.load(ctx, strings.TrimPrefix(iter.Val(), r.prefix))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return out, nil
}

// Close closes the redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) load(ctx context.Context, conversationID string) (*models.Session, error) {
	val, err := r.client.Get(ctx, r.key(conversationID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		slog.Error("RedisStore load failed", "error", err, "conversation", conversationID)
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) save(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ConversationID), data, r.ttl).Err(); err != nil {
		slog.Error("RedisStore save failed", "error", err, "conversation", s.ConversationID)
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	slog.Debug("RedisStore save succeeded", "conversation", s.ConversationID, "flow", s.Flow, "step", s.Step)
	return nil
}

func (r *RedisStore) remove(ctx context.Context, conversationID string) error {
	if err := r.client.Del(ctx, r.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}
