// Package gctable 按key保存对端状态的分桶表, 在访问时顺带回收过期对象.
package gctable

import (
	"hash/crc32"
	"sync"
	"time"
)

var (
	bucketNum    = 256
	minThreshold = 100
	gcInterval   = 10 * time.Minute
)

// Object 可被回收的表项
type Object interface {
	// CanGC 返回对象是否已过期
	CanGC(now time.Time) bool
}

// Table 线程安全的分桶表, 零值可用.
type Table[V Object] struct {
	once    sync.Once
	buckets []bucket[V]
}

// Load 返回key对应的对象, 不存在时调用alloc创建.
func (t *Table[V]) Load(key string, alloc func() V) V {
	return t.getBucket(key).load(key, alloc)
}

// Len 返回表项数量, 包含尚未回收的过期对象.
func (t *Table[V]) Len() int {
	t.init()
	n := 0
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		n += len(b.m)
		b.mu.Unlock()
	}
	return n
}

func (t *Table[V]) init() {
	t.once.Do(func() {
		t.buckets = make([]bucket[V], bucketNum)
	})
}

func (t *Table[V]) getBucket(key string) *bucket[V] {
	t.init()
	hash := crc32.ChecksumIEEE([]byte(key))
	return &t.buckets[hash%uint32(len(t.buckets))]
}

type bucket[V Object] struct {
	mu        sync.Mutex
	m         map[string]V
	threshold int
	lastGC    time.Time
}

func (b *bucket[V]) load(key string, alloc func() V) V {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.m == nil {
		b.m = make(map[string]V)
		b.threshold = minThreshold
		b.lastGC = time.Now()
	}
	b.gc()
	object, ok := b.m[key]
	if !ok {
		object = alloc()
		b.m[key] = object
	}
	return object
}

func (b *bucket[V]) gc() {
	if len(b.m) <= b.threshold && time.Since(b.lastGC) < gcInterval {
		return
	}
	now := time.Now()
	for key, object := range b.m {
		if object.CanGC(now) {
			delete(b.m, key)
		}
	}
	b.threshold = 2 * len(b.m)
	if b.threshold < minThreshold {
		b.threshold = minThreshold
	}
	b.lastGC = now
}
