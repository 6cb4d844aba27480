package content

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisKeyPrefix namespaces item documents in Redis.
const DefaultRedisKeyPrefix = "hodos:item:"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0")
	URL string

	// KeyPrefix is prepended to the record id to form the item key
	KeyPrefix string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisRepository reads item documents stored as JSON strings under
// KeyPrefix + RecordID.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisRepository connects to Redis and verifies the connection with PING.
func NewRedisRepository(opts RedisOptions, logger *zap.Logger) (*RedisRepository, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRepositoryFromClient(client, opts.KeyPrefix, logger), nil
}

// NewRedisRepositoryFromClient wraps an existing client.
func NewRedisRepositoryFromClient(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisRepository) key(id RecordID) string {
	return r.prefix + id.String()
}

// GetItem implements Repository.
func (r *RedisRepository) GetItem(ctx context.Context, id RecordID, access Access) (*Item, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrItemNotFound
		}
		r.logger.Error("Failed to read item from Redis",
			zap.String("record_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("redis get item %s: %w", id, err)
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	if item.ID.IsNil() {
		item.ID = id
	}
	if !access.Permits(&item) {
		return nil, ErrItemNotFound
	}
	return &item, nil
}

// PutItem stores an item document. A zero ttl keeps the key forever.
func (r *RedisRepository) PutItem(ctx context.Context, item *Item, ttl time.Duration) error {
	if item == nil || item.ID.IsNil() {
		return fmt.Errorf("item with a record id is required")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	if err := r.client.Set(ctx, r.key(item.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set item %s: %w", item.ID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
