package dlq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps dead-lettered records in Redis, one key per entry with a
// TTL equal to the tenant's retention window. Expiry is enforced by Redis
// itself, so no sweeper is needed.
type RedisStore struct {
	client    redis.Cmdable
	retention RetentionPolicy
}

// NewRedis constructs a Redis-backed DLQ.
func NewRedis(client redis.Cmdable, retention RetentionPolicy) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func entryKey(tenantID, id string) string {
	return fmt.Sprintf("dlq:%s:%s", tenantID, id)
}

func (s *RedisStore) Push(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	window := s.retention.Window(entry.TenantID)
	if err := s.client.Set(ctx, entryKey(entry.TenantID, entry.ID), raw, window).Err(); err != nil {
		return fmt.Errorf("push dlq entry: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, tenantID string) ([]Entry, error) {
	var out []Entry
	var cursor uint64
	pattern := fmt.Sprintf("dlq:%s:*", tenantID)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan dlq entries: %w", err)
		}
		for _, key := range keys {
			raw, err := s.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue // expired between scan and get
			}
			if err != nil {
				return nil, fmt.Errorf("get dlq entry %s: %w", key, err)
			}
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("unmarshal dlq entry %s: %w", key, err)
			}
			out = append(out, entry)
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}
