// Package cache はプロセス内で共有する短命なメモリキャッシュを提供する。
//
// TTLCache は起動時に1つ生成し、カレンダーアダプタへ参照として渡す。
// 容量上限は持たず、期限切れエントリは読み取り時に遅延削除する。
package cache

import (
	"sync"
	"time"
)

// DefaultTTL はキャッシュエントリの既定の有効期間。
const DefaultTTL = 30 * time.Second

// entry はキャッシュに格納される1件分の値と有効期限を表す。
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache は固定TTLを持つスレッドセーフなキー・バリューキャッシュ。
// 同一キーへの同時書き込みは後勝ちとなる。
type TTLCache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[V]
}

// Option はTTLCacheの生成オプション。
type Option[V any] func(*TTLCache[V])

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTLCache[V]) {
		c.now = now
	}
}

// New は新しいTTLCacheを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func New[V any](ttl time.Duration, opts ...Option[V]) *TTLCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &TTLCache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get はキーに対応する値を返す。
// 未登録または now >= expiresAt の場合は ok=false を返し、期限切れエントリを削除する。
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set は値を now + TTL の有効期限付きで格納する。既存の値は上書きされる。
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete はキーを無条件に削除する。未登録のキーに対しては何もしない。
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Len は格納中のエントリ数を返す。期限切れで未回収のエントリも含む。
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// TTL は設定された有効期間を返す。
func (c *TTLCache[V]) TTL() time.Duration {
	return c.ttl
}
