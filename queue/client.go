package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/provgraph"
)

// HeartbeatTTL is how long a stage stays healthy after its last heartbeat.
const HeartbeatTTL = 30 * time.Second

// Client defines the interface for moving graph items between pipeline
// stages through Redis lists.
type Client interface {
	// PushItem adds an item to the head of a queue (LPUSH).
	PushItem(ctx context.Context, queue string, item Item) error

	// PopItem removes an item from the tail of a queue (BRPOP), waiting up
	// to timeout. It returns nil, nil when the wait times out.
	PopItem(ctx context.Context, queue string, timeout time.Duration) (*Item, error)

	// Len returns the number of items waiting in a queue.
	Len(ctx context.Context, queue string) (int64, error)

	// RegisterOperator writes stage metadata to Redis and adds it to the available set.
	RegisterOperator(ctx context.Context, meta OperatorMeta) error

	// ListOperators returns metadata for all registered stages, sorted by name.
	ListOperators(ctx context.Context) ([]OperatorMeta, error)

	// Heartbeat refreshes the health key of a stage with HeartbeatTTL.
	Heartbeat(ctx context.Context, name string) error

	// IsAlive reports whether a stage sent a heartbeat within HeartbeatTTL.
	IsAlive(ctx context.Context, name string) (bool, error)

	// GetWorkerCount returns the current worker count for a stage.
	GetWorkerCount(ctx context.Context, name string) (int, error)

	// IncrementWorkerCount increments the worker count for a stage.
	IncrementWorkerCount(ctx context.Context, name string) error

	// DecrementWorkerCount decrements the worker count for a stage.
	DecrementWorkerCount(ctx context.Context, name string) error

	// Ping checks the Redis connection.
	Ping(ctx context.Context) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisClient implements the Client interface using go-redis/v9.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, provgraph.NewConfigError("queue.NewRedisClient", fmt.Sprintf("failed to parse Redis URL: %v", err))
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout
	redisOpts.ContextTimeoutEnabled = true

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, provgraph.NewNetworkError("queue.NewRedisClient",
			fmt.Errorf("%w: %w", provgraph.ErrQueueUnavailable, err))
	}

	return &RedisClient{client: client}, nil
}

// PushItem adds an item to the head of a queue.
func (c *RedisClient) PushItem(ctx context.Context, queue string, item Item) error {
	if item.SubmittedAt <= 0 {
		item.SubmittedAt = time.Now().UnixMilli()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := c.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}

	return nil
}

// PopItem removes an item from the tail of a queue, so items come out in
// the order they were pushed.
func (c *RedisClient) PopItem(ctx context.Context, queue string, timeout time.Duration) (*Item, error) {
	// BRPOP returns [queue_name, value] or redis.Nil on timeout
	result, err := c.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var item Item
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return nil, provgraph.NewValidationError("queue.PopItem",
			fmt.Errorf("%w: failed to unmarshal item: %w", provgraph.ErrInvalidItem, err))
	}

	return &item, nil
}

// Len returns the number of items waiting in a queue.
func (c *RedisClient) Len(ctx context.Context, queue string) (int64, error) {
	n, err := c.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of queue %s: %w", queue, err)
	}
	return n, nil
}

// RegisterOperator writes stage metadata to Redis and adds it to the available set.
func (c *RedisClient) RegisterOperator(ctx context.Context, meta OperatorMeta) error {
	if err := meta.IsValid(); err != nil {
		return provgraph.NewValidationError("queue.RegisterOperator", err)
	}

	// Build a flat map for HSET - all values must be strings for go-redis
	metaMap := map[string]string{
		"name":         meta.Name,
		"kind":         meta.Kind,
		"version":      meta.Version,
		"description":  meta.Description,
		"input_queue":  meta.InputQueue,
		"output_queue": meta.OutputQueue,
		"arguments":    meta.Arguments,
		"worker_count": strconv.Itoa(meta.WorkerCount),
	}

	args := make([]interface{}, 0, len(metaMap)*2)
	for k, v := range metaMap {
		args = append(args, k, v)
	}
	if err := c.client.HSet(ctx, formatKeyName("operator", meta.Name, "meta"), args...).Err(); err != nil {
		return fmt.Errorf("failed to set operator metadata: %w", err)
	}

	if err := c.client.SAdd(ctx, "operators:available", meta.Name).Err(); err != nil {
		return fmt.Errorf("failed to add operator to available set: %w", err)
	}

	return nil
}

// ListOperators returns metadata for all registered stages.
func (c *RedisClient) ListOperators(ctx context.Context) ([]OperatorMeta, error) {
	names, err := c.client.SMembers(ctx, "operators:available").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get available operators: %w", err)
	}
	sort.Strings(names)

	operators := make([]OperatorMeta, 0, len(names))
	for _, name := range names {
		metaMap, err := c.client.HGetAll(ctx, formatKeyName("operator", name, "meta")).Result()
		if err != nil || len(metaMap) == 0 {
			// Skip operators with missing metadata
			continue
		}

		meta := OperatorMeta{
			Name:        metaMap["name"],
			Kind:        metaMap["kind"],
			Version:     metaMap["version"],
			Description: metaMap["description"],
			InputQueue:  metaMap["input_queue"],
			OutputQueue: metaMap["output_queue"],
			Arguments:   metaMap["arguments"],
		}

		// The live counter wins over the count stored at registration.
		if count, err := c.GetWorkerCount(ctx, name); err == nil && count > 0 {
			meta.WorkerCount = count
		} else if count, err := strconv.Atoi(metaMap["worker_count"]); err == nil {
			meta.WorkerCount = count
		}

		operators = append(operators, meta)
	}

	return operators, nil
}

// Heartbeat refreshes the health key of a stage.
func (c *RedisClient) Heartbeat(ctx context.Context, name string) error {
	if err := c.client.Set(ctx, formatKeyName("operator", name, "health"), "ok", HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for operator %s: %w", name, err)
	}
	return nil
}

// IsAlive reports whether the health key of a stage is present.
func (c *RedisClient) IsAlive(ctx context.Context, name string) (bool, error) {
	n, err := c.client.Exists(ctx, formatKeyName("operator", name, "health")).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check heartbeat for operator %s: %w", name, err)
	}
	return n > 0, nil
}

// GetWorkerCount returns the current worker count for a stage.
func (c *RedisClient) GetWorkerCount(ctx context.Context, name string) (int, error) {
	countStr, err := c.client.Get(ctx, formatKeyName("operator", name, "workers")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get worker count for operator %s: %w", name, err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid worker count value: %w", err)
	}

	return count, nil
}

// IncrementWorkerCount increments the worker count for a stage.
func (c *RedisClient) IncrementWorkerCount(ctx context.Context, name string) error {
	if err := c.client.Incr(ctx, formatKeyName("operator", name, "workers")).Err(); err != nil {
		return fmt.Errorf("failed to increment worker count for operator %s: %w", name, err)
	}
	return nil
}

// DecrementWorkerCount decrements the worker count for a stage.
func (c *RedisClient) DecrementWorkerCount(ctx context.Context, name string) error {
	if err := c.client.Decr(ctx, formatKeyName("operator", name, "workers")).Err(); err != nil {
		return fmt.Errorf("failed to decrement worker count for operator %s: %w", name, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return provgraph.NewNetworkError("queue.Ping", fmt.Errorf("%w: %w", provgraph.ErrQueueUnavailable, err))
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// formatKeyName ensures consistent key naming with operator:<name>:* pattern.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
