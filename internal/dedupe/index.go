// ABOUTME: Thread-safe TTL index mapping content-hash keys to accepted message IDs.
// ABOUTME: Gives the store at-most-once append semantics under at-least-once redelivery.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// indexEntry stores the accepted message ID, timestamp, and list element for a key.
type indexEntry struct {
	messageID string
	timestamp time.Time
	element   *list.Element
}

// Index is a thread-safe, TTL-based, size-limited map from dedup keys to the
// message ID that was accepted for that key. Upstream sources deliver with
// at-least-once semantics; redelivered messages resolve to the original ID
// instead of producing duplicates. Uses a doubly-linked list to maintain
// insertion order for O(1) eviction.
type Index struct {
	mu      sync.RWMutex
	seen    map[string]*indexEntry
	order   *list.List // List of keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedup index with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New(ttl time.Duration, maxSize int) *Index {
	idx := &Index{
		seen:    make(map[string]*indexEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go idx.cleanup()
	return idx
}

// Lookup returns the message ID recorded for the key, if present and not expired.
func (idx *Index) Lookup(key string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entry, ok := idx.seen[key]
	if !ok || time.Since(entry.timestamp) >= idx.ttl {
		return "", false
	}
	return entry.messageID, true
}

// LookupOrRemember atomically resolves a key: if the key is already recorded
// and not expired, it returns the existing message ID and true. Otherwise it
// records messageID for the key and returns it with false. Doing both under
// one lock prevents TOCTOU races between concurrent appends of the same content.
func (idx *Index) LookupOrRemember(key, messageID string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.seen[key]
	if ok && time.Since(entry.timestamp) < idx.ttl {
		return entry.messageID, true
	}

	idx.rememberLocked(key, messageID)
	return messageID, false
}

// Remember records a key -> message ID mapping. If the index is at capacity,
// the oldest entry is evicted to make room.
func (idx *Index) Remember(key, messageID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rememberLocked(key, messageID)
}

// rememberLocked is the internal record implementation. Must be called with mu held.
func (idx *Index) rememberLocked(key, messageID string) {
	now := time.Now()

	// If key already exists, refresh it and move to back
	if entry, exists := idx.seen[key]; exists {
		entry.messageID = messageID
		entry.timestamp = now
		idx.order.MoveToBack(entry.element)
		return
	}

	// Evict oldest if at capacity
	if len(idx.seen) >= idx.maxSize {
		idx.evictOldest()
	}

	elem := idx.order.PushBack(key)
	idx.seen[key] = &indexEntry{
		messageID: messageID,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry from the index.
// Must be called with mu held. O(1) operation using the linked list.
func (idx *Index) evictOldest() {
	front := idx.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	idx.order.Remove(front)
	delete(idx.seen, key)
}

// Len returns the number of live entries (including expired but not yet swept).
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.seen)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (idx *Index) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idx.runCleanup()
		case <-idx.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the index.
func (idx *Index) runCleanup() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := time.Now()
	for key, entry := range idx.seen {
		if now.Sub(entry.timestamp) > idx.ttl {
			idx.order.Remove(entry.element)
			delete(idx.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (idx *Index) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.closed {
		close(idx.done)
		idx.closed = true
	}
}
