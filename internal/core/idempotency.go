package core

import (
	"container/list"
	"fmt"
)

// DedupLookup is the cold-path duplicate check backed by the event log.
type DedupLookup interface {
	Seen(eventType string, idempotencyKey string) (bool, error)
}

// IdempotencyChecker deduplicates operations in two tiers: an in-memory
// LRU over composite keys for the hot path, with a database fallback for
// keys that aged out of the cache. A lookup error on the cold path is
// treated as "not seen" so a database hiccup cannot stall processing;
// the event log's unique key constraint remains the final guard.
type IdempotencyChecker struct {
	lru    *keyLRU
	lookup DedupLookup

	lookupErrors int64
}

func NewIdempotencyChecker(capacity int, lookup DedupLookup) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:    newKeyLRU(capacity),
		lookup: lookup,
	}
}

func compositeKey(eventType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", eventType, idempotencyKey)
}

// IsDuplicate reports whether this operation was already processed.
func (ic *IdempotencyChecker) IsDuplicate(eventType, idempotencyKey string) bool {
	key := compositeKey(eventType, idempotencyKey)

	if ic.lru.Contains(key) {
		return true
	}

	if ic.lookup != nil {
		seen, err := ic.lookup.Seen(eventType, idempotencyKey)
		if err != nil {
			ic.lookupErrors++
			return false
		}
		if seen {
			ic.lru.Add(key)
			return true
		}
	}

	return false
}

// MarkProcessed records an accepted operation. Rejected operations are
// deliberately NOT marked: a retry with the same operation ID must be
// re-evaluated, not swallowed as a duplicate.
func (ic *IdempotencyChecker) MarkProcessed(eventType, idempotencyKey string) {
	ic.lru.Add(compositeKey(eventType, idempotencyKey))
}

// Warm preloads composite keys, used on restart so recent operations do
// not all fall through to the cold path.
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, key := range keys {
		ic.lru.Add(key)
	}
}

// Keys returns every cached composite key, newest first, for snapshots.
func (ic *IdempotencyChecker) Keys() []string {
	return ic.lru.Keys()
}

// Size returns the number of cached keys.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Len()
}

// Evictions returns how many keys aged out of the cache.
func (ic *IdempotencyChecker) Evictions() int64 {
	return ic.lru.evictions
}

// LookupErrors returns how many cold-path lookups failed.
func (ic *IdempotencyChecker) LookupErrors() int64 {
	return ic.lookupErrors
}

// keyLRU is a plain LRU over strings.
// Not thread-safe — only touched from the single-threaded engine.
type keyLRU struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recent

	evictions int64
}

func newKeyLRU(capacity int) *keyLRU {
	return &keyLRU{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (lru *keyLRU) Contains(key string) bool {
	elem, ok := lru.entries[key]
	if ok {
		lru.order.MoveToFront(elem)
	}
	return ok
}

func (lru *keyLRU) Add(key string) {
	if elem, ok := lru.entries[key]; ok {
		lru.order.MoveToFront(elem)
		return
	}

	lru.entries[key] = lru.order.PushFront(key)

	if lru.order.Len() > lru.capacity {
		oldest := lru.order.Back()
		if oldest != nil {
			lru.order.Remove(oldest)
			delete(lru.entries, oldest.Value.(string))
			lru.evictions++
		}
	}
}

func (lru *keyLRU) Keys() []string {
	keys := make([]string, 0, lru.order.Len())
	for elem := lru.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(string))
	}
	return keys
}

func (lru *keyLRU) Len() int {
	return lru.order.Len()
}
