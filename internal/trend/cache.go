package trend

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hitoshi/agentskills/internal/model"
)

// CacheKey はトレンドキャッシュのキー。
// (agent_id, platform, niche, max_age) の組と完全に一致する場合のみ再利用する。
type CacheKey struct {
	AgentID  string
	Platform string
	Niche    string
	MaxAge   time.Duration
}

// String はRedisキーとして使う文字列表現を返す。
// 区切り文字との衝突を避けるため各要素をエスケープする。
func (k CacheKey) String() string {
	return fmt.Sprintf("agentskills:trends:%s:%s:%s:%d",
		url.QueryEscape(k.AgentID),
		url.QueryEscape(k.Platform),
		url.QueryEscape(k.Niche),
		int64(k.MaxAge/time.Second),
	)
}

// Cache はトレンド取得結果のキャッシュインターフェース。
// 読み出した結果の鮮度はServiceが呼び出し時点の時刻で再検証する。
type Cache interface {
	// Get はキャッシュを参照する。エントリがない場合はfalseを返す。
	Get(ctx context.Context, key CacheKey) (*model.TrendResult, bool, error)
	// Set は結果をttlの間保存する。
	Set(ctx context.Context, key CacheKey, result *model.TrendResult, ttl time.Duration) error
}

type memoryEntry struct {
	result    *model.TrendResult
	expiresAt time.Time
}

// MemoryCache はプロセス内のLRUキャッシュ。
// LRU自体はスレッドセーフだが、期限切れの削除と参照を直列化するためロックを併用する。
type MemoryCache struct {
	mu    sync.Mutex
	lru   *lru.Cache[CacheKey, memoryEntry]
	clock func() time.Time
}

// NewMemoryCache は最大size件を保持するMemoryCacheを生成する。
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("キャッシュサイズは1以上を指定してください: %d", size)
	}
	l, err := lru.New[CacheKey, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("LRUキャッシュの生成に失敗しました: %w", err)
	}
	return &MemoryCache{lru: l, clock: time.Now}, nil
}

// Get はCacheを実装する。期限切れのエントリは削除してfalseを返す。
func (c *MemoryCache) Get(_ context.Context, key CacheKey) (*model.TrendResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !c.clock().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return e.result, true, nil
}

// Set はCacheを実装する。
func (c *MemoryCache) Set(_ context.Context, key CacheKey, result *model.TrendResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, memoryEntry{result: result, expiresAt: c.clock().Add(ttl)})
	return nil
}

// Len は保持しているエントリ数を返す。
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
