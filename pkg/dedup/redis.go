package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrEmptyAddress = errors.New("redis address is required")

const (
	connectionTimeout = 5 * time.Second
	scanBatchSize     = 100
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisIndex keeps seen ids as <prefix>:<runID>:<post_id> keys. Keys
// expire after ttl so a run's index does not outlive it.
type RedisIndex struct {
	client *redis.Client
	prefix string
	runID  string
	ttl    time.Duration
}

func NewRedisIndex(client *redis.Client, prefix, runID string, ttl time.Duration) *RedisIndex {
	if prefix == "" {
		prefix = "fbposts:seen"
	}
	return &RedisIndex{
		client: client,
		prefix: prefix,
		runID:  runID,
		ttl:    ttl,
	}
}

func (r *RedisIndex) key(id string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, r.runID, id)
}

func (r *RedisIndex) pattern() string {
	return fmt.Sprintf("%s:%s:*", r.prefix, r.runID)
}

func (r *RedisIndex) Add(ctx context.Context, id string) (bool, error) {
	added, err := r.client.SetNX(ctx, r.key(id), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", id, err)
	}
	return added, nil
}

func (r *RedisIndex) Contains(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *RedisIndex) Len(ctx context.Context) (int, error) {
	count := 0
	err := r.scan(ctx, func(keys []string) error {
		count += len(keys)
		return nil
	})
	return count, err
}

func (r *RedisIndex) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.pattern(), scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
