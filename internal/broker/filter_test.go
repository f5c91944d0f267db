package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentFilter(t *testing.T) {
	f := newContentFilter()

	assert.True(t, f.subscribe(1, "ball"))
	assert.False(t, f.subscribe(1, "ball"))
	assert.True(t, f.subscribe(2, "score"))
	assert.True(t, f.subscribe(3, "ball"))

	assert.Equal(t, []int{1, 3, 2}, f.match([]string{"ball", "score"}).Slice())
	assert.Equal(t, []int{2}, f.match([]string{"score", "unknown"}).Slice())
	assert.Empty(t, f.match(nil).Slice())

	assert.True(t, f.unsubscribe(1, "ball"))
	assert.False(t, f.unsubscribe(1, "ball"))
	assert.False(t, f.unsubscribe(1, "unknown"))

	f.unsubscribeAll(3)
	assert.Equal(t, map[string][]int{"score": {2}}, f.snapshot())
}
