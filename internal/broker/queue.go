package broker

import (
	"context"
	"slices"
	"sync"

	"github.com/casualjim/tidings/pkg/idset"
)

// pending is a payload together with the subscribers that have not been
// reached yet.
type pending[T any] struct {
	payload T
	targets *idset.Set
}

// retryQueue holds items whose pending set is not empty. Once an item is
// queued its pending set is only read or changed under mu.
type retryQueue[T any] struct {
	mu    sync.Mutex
	items []*pending[T]
	wake  chan struct{}
}

func newRetryQueue[T any]() *retryQueue[T] {
	return &retryQueue[T]{wake: make(chan struct{}, 1)}
}

func (q *retryQueue[T]) push(item *pending[T]) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// waitNonEmpty blocks until the queue holds at least one item. It returns false
// when ctx is done first.
func (q *retryQueue[T]) waitNonEmpty(ctx context.Context) bool {
	for {
		if q.len() > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-q.wake:
		}
	}
}

func (q *retryQueue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *retryQueue[T]) list() []*pending[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

func (q *retryQueue[T]) targetsOf(item *pending[T]) []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return item.targets.Slice()
}

// settle removes delivered IDs from item and drops the item once its pending
// set is empty. It returns how many targets are left.
func (q *retryQueue[T]) settle(item *pending[T], delivered []int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range delivered {
		item.targets.Remove(id)
	}
	left := item.targets.Len()
	if left == 0 {
		q.items = slices.DeleteFunc(q.items, func(p *pending[T]) bool { return p == item })
	}
	return left
}

// find returns the pending IDs of the first queued item matching fn.
func (q *retryQueue[T]) find(fn func(T) bool) ([]int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if fn(item.payload) {
			return item.targets.Slice(), true
		}
	}
	return nil, false
}
