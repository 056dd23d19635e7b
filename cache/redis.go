package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"precinct-nav/metrics"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache stores route results. Values are gzip-compressed JSON.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisCache{
		client: client,
		prefix: "wayfinding:",
		ttl:    ttl,
		logger: logger.With(zap.String("component", "redis_cache")),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// GetJSON decodes a cached value into dest. found is false on a miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RouteCacheTotal.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.RouteCacheTotal.WithLabelValues("error").Inc()
		c.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	data, err := gzipDecompress(val)
	if err != nil {
		return false, fmt.Errorf("decompress: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	metrics.RouteCacheTotal.WithLabelValues("hit").Inc()
	return true, nil
}

// SetJSON stores value under key with the cache TTL.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), compressed, c.ttl).Err(); err != nil {
		c.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	c.logger.Debug("cache set",
		zap.String("key", key),
		zap.Int("size_bytes", len(data)),
		zap.Int("compressed_bytes", len(compressed)))
	return nil
}

// DeleteVersion drops every entry cached for a graph version.
func (c *RedisCache) DeleteVersion(ctx context.Context, version string) error {
	iter := c.client.Scan(ctx, 0, c.key(versionPattern(version)), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
