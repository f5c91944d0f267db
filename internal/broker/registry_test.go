package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionRegistry(t *testing.T) {
	t.Run("connect issues increasing ids", func(t *testing.T) {
		r := newConnectionRegistry()
		assert.Equal(t, 1, r.connect(newRecordingSubscriber("a")))
		assert.Equal(t, 2, r.connect(newRecordingSubscriber("b")))
		assert.Equal(t, []int{1, 2}, r.ids())
	})

	t.Run("unbind keeps the id known", func(t *testing.T) {
		r := newConnectionRegistry()
		id := r.connect(newRecordingSubscriber("a"))

		assert.True(t, r.unbind(id))
		_, ok := r.lookup(id)
		assert.False(t, ok)
		assert.Equal(t, []int{id}, r.ids())
		assert.Equal(t, []Connection{{ID: id}}, r.snapshot())
	})

	t.Run("unbind of an unknown id is a no-op", func(t *testing.T) {
		r := newConnectionRegistry()
		assert.False(t, r.unbind(42))
		assert.Empty(t, r.ids())
	})

	t.Run("reconnect rebinds a known id", func(t *testing.T) {
		r := newConnectionRegistry()
		id := r.connect(newRecordingSubscriber("a"))
		r.unbind(id)

		assert.True(t, r.reconnect(id, newRecordingSubscriber("a-again")))
		sub, ok := r.lookup(id)
		assert.True(t, ok)
		assert.Equal(t, "a-again", sub.Identity())
	})

	t.Run("reconnect with a foreign id never collides with later ids", func(t *testing.T) {
		r := newConnectionRegistry()
		assert.False(t, r.reconnect(5, newRecordingSubscriber("spoof")))
		assert.Equal(t, 6, r.connect(newRecordingSubscriber("a")))
	})
}
