package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
)

const (
	// DefaultMessageTTL is how long a room's history lives without new messages.
	DefaultMessageTTL = 7 * 24 * time.Hour
	// DefaultHistoryLimit caps the number of messages kept per room.
	DefaultHistoryLimit = 1000
)

// RedisStore is the keyed TTL store paired with the fan-out adapter. It holds
// presence records, room snapshots and message history.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter and pub/sub bus.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// roomMessagesKey returns the key for a room's message id index.
func roomMessagesKey(roomID models.RoomID) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// roomMessageDataKey returns the key for a room's encoded messages.
func roomMessageDataKey(roomID models.RoomID) string {
	return fmt.Sprintf("room:%s:message_data", roomID)
}

// Put stores value under key. A zero ttl keeps the key forever.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	defer observe(time.Now())
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get returns the value under key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer observe(time.Now())
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// AppendMessage stores an encoded message in the room's history. Message ids
// are ULIDs so the index is kept as a lexicographically ordered sorted set
// with a zero score. History beyond limit is trimmed oldest first.
func (s *RedisStore) AppendMessage(ctx context.Context, roomID models.RoomID, id models.MessageID, data []byte, limit int, ttl time.Duration) error {
	defer observe(time.Now())

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}

	idx := roomMessagesKey(roomID)
	blobs := roomMessageDataKey(roomID)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, idx, redis.Z{Score: 0, Member: string(id)})
	pipe.HSet(ctx, blobs, string(id), data)
	pipe.Expire(ctx, idx, ttl)
	pipe.Expire(ctx, blobs, ttl)
	card := pipe.ZCard(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	excess := card.Val() - int64(limit)
	if excess <= 0 {
		return nil
	}

	old, err := s.client.ZRange(ctx, idx, 0, excess-1).Result()
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}

	members := make([]interface{}, len(old))
	for i, m := range old {
		members[i] = m
	}
	trim := s.client.Pipeline()
	trim.ZRem(ctx, idx, members...)
	trim.HDel(ctx, blobs, old...)
	_, err = trim.Exec(ctx)
	return err
}

// RoomHistory returns up to limit encoded messages in chronological order.
// before and after are exclusive message id bounds. With after set the page
// starts right after it; otherwise the page ends at the newest message older
// than before (or the newest message overall).
func (s *RedisStore) RoomHistory(ctx context.Context, roomID models.RoomID, before, after models.MessageID, limit int) ([][]byte, error) {
	defer observe(time.Now())

	if limit <= 0 {
		return [][]byte{}, nil
	}

	idx := roomMessagesKey(roomID)

	upper := "+"
	if before != "" {
		upper = "(" + string(before) // exclusive
	}

	var ids []string
	var err error
	if after != "" {
		ids, err = s.client.ZRangeByLex(ctx, idx, &redis.ZRangeBy{
			Min:   "(" + string(after),
			Max:   upper,
			Count: int64(limit),
		}).Result()
	} else {
		ids, err = s.client.ZRevRangeByLex(ctx, idx, &redis.ZRangeBy{
			Min:   "-",
			Max:   upper,
			Count: int64(limit),
		}).Result()
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return [][]byte{}, nil
	}

	values, err := s.client.HMGet(ctx, roomMessageDataKey(roomID), ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // expired or trimmed
		}
		out = append(out, []byte(str))
	}
	return out, nil
}
