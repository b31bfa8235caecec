package hallucination

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// verificationCache is a bounded LRU keyed by the hash of normalized claim
// text. It is process-wide: repeated verification of the same claim invokes
// the backend at most once while the entry stays resident.
type verificationCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key    string
	result VerificationResult
}

func newVerificationCache(capacity int) *verificationCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &verificationCache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// claimKey hashes normalized claim text into the cache key.
func claimKey(text string) string {
	sum := sha256.Sum256([]byte(normalizeClaim(text)))
	return hex.EncodeToString(sum[:])
}

func (c *verificationCache) get(key string) (VerificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return VerificationResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

// put stores a result, last-writer-wins, evicting the oldest entry at cap.
func (c *verificationCache) put(key string, result VerificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, result: result})
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *verificationCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
