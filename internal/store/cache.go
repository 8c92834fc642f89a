package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// GameStateCacheTTL はゲーム状態読み取りキャッシュの有効期間です。
// ブロードキャストのファンアウトによる読み取りストームを吸収するための短いTTLです。
const GameStateCacheTTL = 5 * time.Second

type cacheEntry struct {
	value     string
	found     bool
	expiresAt time.Time
}

// CachedStore は player_game:* キーの読み取りに短TTLのインプロセスキャッシュを
// 重ねるStoreラッパーです。対象キーへの書き込み・削除は即座にキャッシュを無効化します。
type CachedStore struct {
	Store

	mu    sync.Mutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

// NewCachedStore は指定ストアをラップしたCachedStoreを作成します。
func NewCachedStore(inner Store) *CachedStore {
	return &CachedStore{
		Store: inner,
		cache: make(map[string]cacheEntry),
		ttl:   GameStateCacheTTL,
	}
}

func isCacheable(key string) bool {
	return strings.HasPrefix(key, "player_game:")
}

// Get はキャッシュ対象キーについて、有効なキャッシュエントリがあればそれを返します。
func (c *CachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if !isCacheable(key) {
		return c.Store.Get(ctx, key)
	}

	now := time.Now()
	c.mu.Lock()
	if e, ok := c.cache[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, e.found, nil
	}
	c.mu.Unlock()

	value, found, err := c.Store.Get(ctx, key)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{value: value, found: found, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return value, found, nil
}

// Set は書き込み前に該当キーのキャッシュエントリを無効化します。
func (c *CachedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if isCacheable(key) {
		c.invalidate(key)
	}
	return c.Store.Set(ctx, key, value, ttl)
}

// Del は削除前に該当キーのキャッシュエントリを無効化します。
func (c *CachedStore) Del(ctx context.Context, key string) error {
	if isCacheable(key) {
		c.invalidate(key)
	}
	return c.Store.Del(ctx, key)
}

func (c *CachedStore) invalidate(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
}
