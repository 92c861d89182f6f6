package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大元素数量，必须为正数。
	Capacity int
	// TTL 是元素自最近一次写入起的存活时间。如果为0，则元素永不过期。
	TTL time.Duration
	// Now 用于注入时钟，测试时可替换。为空时使用 time.Now。
	Now func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	expiration time.Time
}

// LRUCache 是一个支持泛型、线程安全、带滑动TTL的LRU缓存。
type LRUCache[K comparable, V any] struct {
	config CacheConfig
	ll     *list.List
	cache  map[K]*list.Element
	lock   sync.Mutex
}

// NewWithConfig 使用指定的配置创建一个LRU缓存实例。
func NewWithConfig[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("LRU 缓存的 Capacity 必须为正数")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		cache:  make(map[K]*list.Element),
	}, nil
}

// Get 根据键获取一个值。过期的元素会被移除并视为不存在。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.lookup(key)
	if !ok {
		var zeroV V
		return zeroV, false
	}
	c.ll.MoveToFront(element)
	return element.Value.(*entry[K, V]).value, true
}

// Put 添加或覆盖一个键值对，并刷新其TTL。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.put(key, value)
}

// Update 在持有锁的情况下执行读-改-写。fn 收到当前值（不存在或已过期时 ok 为 false），
// 返回新值；keep 为 false 时删除该键。TTL 随写入刷新。
func (c *LRUCache[K, V]) Update(key K, fn func(current V, ok bool) (next V, keep bool)) V {
	c.lock.Lock()
	defer c.lock.Unlock()

	var current V
	element, ok := c.lookup(key)
	if ok {
		current = element.Value.(*entry[K, V]).value
	}
	next, keep := fn(current, ok)
	if !keep {
		if ok {
			c.removeElement(element)
		}
		return next
	}
	c.put(key, next)
	return next
}

// Delete 删除一个键，返回该键此前是否存在且未过期。
func (c *LRUCache[K, V]) Delete(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.lookup(key)
	if ok {
		c.removeElement(element)
	}
	return ok
}

// Len 返回当前未过期的条目数量。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.config.TTL > 0 {
		now := c.config.Now()
		for e := c.ll.Back(); e != nil; {
			prev := e.Prev()
			if now.After(e.Value.(*entry[K, V]).expiration) {
				c.removeElement(e)
			}
			e = prev
		}
	}
	return c.ll.Len()
}

// Range 按最近使用顺序遍历未过期的条目，fn 返回 false 时停止。不改变访问顺序。
// fn 在持有锁时执行，不得回调缓存本身。
func (c *LRUCache[K, V]) Range(fn func(key K, value V) bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.config.Now()
	for e := c.ll.Front(); e != nil; e = e.Next() {
		item := e.Value.(*entry[K, V])
		if c.config.TTL > 0 && now.After(item.expiration) {
			continue
		}
		if !fn(item.key, item.value) {
			return
		}
	}
}

// lookup 返回未过期的元素，过期元素被动淘汰。此方法假设已持有锁。
func (c *LRUCache[K, V]) lookup(key K) (*list.Element, bool) {
	element, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && c.config.Now().After(element.Value.(*entry[K, V]).expiration) {
		c.removeElement(element)
		return nil, false
	}
	return element, true
}

// put 写入元素并在超出容量时淘汰最久未使用的元素。此方法假设已持有锁。
func (c *LRUCache[K, V]) put(key K, value V) {
	var expiration time.Time
	if c.config.TTL > 0 {
		expiration = c.config.Now().Add(c.config.TTL)
	}
	if element, ok := c.cache[key]; ok {
		e := element.Value.(*entry[K, V])
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(element)
		return
	}
	c.cache[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, expiration: expiration})
	for c.ll.Len() > c.config.Capacity {
		c.removeElement(c.ll.Back())
	}
}

// removeElement 从链表和map中移除元素。此方法假设已持有锁。
func (c *LRUCache[K, V]) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.cache, e.Value.(*entry[K, V]).key)
}
