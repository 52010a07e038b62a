package trend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/agentskills/internal/model"
)

// RedisCache はRedisに結果をJSONで保存するキャッシュ。
// 複数のAPIプロセスで結果を共有する場合に使用する。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache はRedisCacheを生成する。
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisCacheFromURL はredis://形式のURLからRedisCacheを生成する。
func NewRedisCacheFromURL(rawURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLのパースに失敗しました: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Get はCacheを実装する。
// 保存されたJSONはUnmarshalJSONで再検証されるため、不正なエントリはエラーとなる。
func (c *RedisCache) Get(ctx context.Context, key CacheKey) (*model.TrendResult, bool, error) {
	data, err := c.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("キャッシュの読み出しに失敗しました: %w", err)
	}

	var result model.TrendResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("キャッシュのデコードに失敗しました: %w", err)
	}
	return &result, true, nil
}

// Set はCacheを実装する。ttlはRedisの有効期限として設定する。
func (c *RedisCache) Set(ctx context.Context, key CacheKey, result *model.TrendResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗しました: %w", err)
	}
	if err := c.client.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close はRedisとの接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}
