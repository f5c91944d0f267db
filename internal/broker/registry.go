package broker

import (
	"sync"

	"github.com/casualjim/tidings/pubsub"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// connectionRegistry maps subscriber IDs to their current handle. A nil handle
// means the subscriber is known but disconnected.
type connectionRegistry struct {
	mu      sync.RWMutex
	lastID  int
	handles *orderedmap.OrderedMap[int, pubsub.Subscriber]
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{
		handles: orderedmap.New[int, pubsub.Subscriber](),
	}
}

func (r *connectionRegistry) connect(sub pubsub.Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	r.handles.Set(r.lastID, sub)
	return r.lastID
}

// reconnect binds sub to a caller supplied id. The id is not verified, it only
// reports whether it had been issued before. The counter moves past foreign ids
// so they are never handed out again.
func (r *connectionRegistry) reconnect(id int, sub pubsub.Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.handles.Get(id)
	r.handles.Set(id, sub)
	if id > r.lastID {
		r.lastID = id
	}
	return known
}

func (r *connectionRegistry) unbind(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.handles.Get(id); !known {
		return false
	}
	r.handles.Set(id, nil)
	return true
}

func (r *connectionRegistry) lookup(id int) (pubsub.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, _ := r.handles.Get(id)
	return sub, sub != nil
}

// ids returns every subscriber ID ever issued, connected or not.
func (r *connectionRegistry) ids() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, r.handles.Len())
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Connection describes one registry entry.
type Connection struct {
	ID        int    `json:"id"`
	Identity  string `json:"identity,omitempty"`
	Connected bool   `json:"connected"`
}

func (r *connectionRegistry) snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, r.handles.Len())
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		c := Connection{ID: pair.Key}
		if pair.Value != nil {
			c.Identity = pair.Value.Identity()
			c.Connected = true
		}
		out = append(out, c)
	}
	return out
}
