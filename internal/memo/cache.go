// Package memo は純粋なデータ取得処理をTTL付きでメモ化するキャッシュを提供する。
//
// キャッシュ全体を1つのミューテックスで保護する。ヒット判定、ロード、格納は
// すべてのキーをまたいで直列化されるため、同じキーの同時再計算や書きかけの
// エントリの読み取りは発生しない。その代わり遅いローダーは他のキーの
// アクセスも待たせる。
package memo

import (
	"fmt"
	"sync"
	"time"
)

// Key はキャッシュキー。操作名と引数値の組で一意に決まる。
// Argsには比較可能な値（複数引数の場合は構造体）を格納する。
type Key struct {
	Op   string
	Args any
}

// noArgs は引数なし関数のキーに使う値。
type noArgs struct{}

// entry はキャッシュされた値と格納時刻。
type entry struct {
	value    any
	storedAt time.Time
}

// Observer はキャッシュのヒット/ミスを受け取るインターフェース。
// metrics.Collectorが実装する。
type Observer interface {
	CacheHit(op string)
	CacheMiss(op string)
}

// Cache はプロセス内で共有するメモ化キャッシュ。
// 容量上限・追い出しはない。
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]entry
	ops      map[string]struct{}
	now      func() time.Time
	observer Observer
}

// Option はCacheの生成オプション。
type Option func(*Cache)

// WithClock はTTL判定に使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithObserver はヒット/ミスの通知先を設定する。
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

// New は空のCacheを生成する。
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]entry),
		ops:     make(map[string]struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len は格納済みエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset は全エントリを破棄する。登録済みの操作名は残る。
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry)
}

// register はopをこのCacheのメモ化関数として登録する。
// 同じ操作名を2つのメモ化関数が使うとエントリを取り違えるため、重複はpanicする。
func (c *Cache) register(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.ops[op]; dup {
		panic(fmt.Sprintf("memo: op %q is already memoized on this cache", op))
	}
	c.ops[op] = struct{}{}
}

// load はkeyの値を返す。新鮮なエントリがなければfnを呼び出して格納する。
// fnはロックを保持したまま実行される。
func (c *Cache) load(key Key, ttl time.Duration, fn func() (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok && now.Sub(e.storedAt) < ttl {
		if c.observer != nil {
			c.observer.CacheHit(key.Op)
		}
		return e.value, nil
	}

	if c.observer != nil {
		c.observer.CacheMiss(key.Op)
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}

	c.entries[key] = entry{value: value, storedAt: now}
	return value, nil
}

// Memoize は引数なしの関数fnをメモ化した関数を返す。
// ttlが0の場合は毎回fnを呼び出すが、結果は記録する。
// fnのエラーはそのまま返し、キャッシュには格納しない。
// fnはキャッシュのロック内で実行されるため、同じCacheのメモ化関数を
// fnの中から呼び出してはならない。
// opは1つのCacheの中で一意でなければならず、重複するとpanicする。
func Memoize[T any](c *Cache, op string, ttl time.Duration, fn func() (T, error)) func() (T, error) {
	c.register(op)
	key := Key{Op: op, Args: noArgs{}}
	return func() (T, error) {
		v, err := c.load(key, ttl, func() (any, error) {
			return fn()
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return cast[T](op, v)
	}
}

// Memoize1 は引数を1つ取る関数fnをメモ化した関数を返す。
// 複数の引数を取る場合は比較可能な構造体にまとめてAとして渡す。
func Memoize1[A comparable, T any](c *Cache, op string, ttl time.Duration, fn func(A) (T, error)) func(A) (T, error) {
	c.register(op)
	return func(arg A) (T, error) {
		v, err := c.load(Key{Op: op, Args: arg}, ttl, func() (any, error) {
			return fn(arg)
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return cast[T](op, v)
	}
}

// cast はキャッシュから取り出した値をTに変換する。
// nilはインターフェース型Tのゼロ値として扱う。
func cast[T any](op string, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("memo: op %q cached %T, want %T", op, v, zero)
	}
	return t, nil
}
