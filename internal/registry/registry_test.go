package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := New[int]()

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Add("a", 1)
	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, existed := r.GetOrAdd("a", func() int { return 2 })
	assert.True(t, existed)
	assert.Equal(t, 1, v)

	v, existed = r.GetOrAdd("b", func() int { return 2 })
	assert.False(t, existed)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, r.Len())

	r.Del("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}
