package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agriview/console-gateway/internal/domain"
)

const matrixKeyPrefix = "console:permissions:"

// ErrCacheMiss is returned when no matrix is cached for a user.
var ErrCacheMiss = errors.New("cache miss")

// MatrixCache is the optional warm cache consulted before the upstream
// fetch. A nil cache is valid and always misses.
type MatrixCache interface {
	Get(ctx context.Context, userName string) (*domain.PermissionMatrix, error)
	Set(ctx context.Context, userName string, matrix *domain.PermissionMatrix, ttl time.Duration) error
	Invalidate(ctx context.Context, userName string) error
}

// RedisMatrixCache caches resolved permission matrices in Redis, keyed by
// user, so a gateway restart inside the TTL skips the upstream round trip.
type RedisMatrixCache struct {
	client *redis.Client
}

// NewRedisMatrixCache creates a Redis-backed matrix cache.
func NewRedisMatrixCache(client *redis.Client) *RedisMatrixCache {
	return &RedisMatrixCache{client: client}
}

// Get retrieves a cached matrix for a user.
func (c *RedisMatrixCache) Get(ctx context.Context, userName string) (*domain.PermissionMatrix, error) {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.GetPermissionMatrix",
		trace.WithAttributes(attribute.String("cache.user", userName)),
	)
	defer span.End()

	data, err := c.client.Get(ctx, matrixKeyPrefix+userName).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.String("cache.result", "miss"))
			return nil, ErrCacheMiss
		}
		span.RecordError(err)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	span.SetAttributes(attribute.String("cache.result", "hit"))
	var matrix domain.PermissionMatrix
	if err := json.Unmarshal(data, &matrix); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return &matrix, nil
}

// Set caches a matrix with TTL.
func (c *RedisMatrixCache) Set(ctx context.Context, userName string, matrix *domain.PermissionMatrix, ttl time.Duration) error {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "redis.SetPermissionMatrix",
		trace.WithAttributes(
			attribute.String("cache.user", userName),
			attribute.Int64("cache.ttl_seconds", int64(ttl.Seconds())),
		),
	)
	defer span.End()

	data, err := json.Marshal(matrix)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := c.client.Set(ctx, matrixKeyPrefix+userName, data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Invalidate removes a user's cached matrix.
func (c *RedisMatrixCache) Invalidate(ctx context.Context, userName string) error {
	if err := c.client.Del(ctx, matrixKeyPrefix+userName).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}
