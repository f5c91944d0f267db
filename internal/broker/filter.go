package broker

import (
	"sync"

	"github.com/casualjim/tidings/pkg/idset"
)

// contentFilter maps a keyword to the subscribers interested in it, regardless
// of which topics they are subscribed to.
type contentFilter struct {
	mu      sync.RWMutex
	buckets map[string]*idset.Set
}

func newContentFilter() *contentFilter {
	return &contentFilter{buckets: make(map[string]*idset.Set)}
}

func (f *contentFilter) subscribe(id int, keyword string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[keyword]
	if !ok {
		bucket = idset.New()
		f.buckets[keyword] = bucket
	}
	return bucket.Add(id)
}

func (f *contentFilter) unsubscribe(id int, keyword string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[keyword]
	if !ok {
		return false
	}
	removed := bucket.Remove(id)
	if bucket.Len() == 0 {
		delete(f.buckets, keyword)
	}
	return removed
}

func (f *contentFilter) unsubscribeAll(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for keyword, bucket := range f.buckets {
		bucket.Remove(id)
		if bucket.Len() == 0 {
			delete(f.buckets, keyword)
		}
	}
}

// match returns every subscriber interested in at least one of keywords, in
// keyword order.
func (f *contentFilter) match(keywords []string) *idset.Set {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := idset.New()
	for _, k := range keywords {
		out.Union(f.buckets[k])
	}
	return out
}

func (f *contentFilter) snapshot() map[string][]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string][]int, len(f.buckets))
	for k, bucket := range f.buckets {
		out[k] = bucket.Slice()
	}
	return out
}
