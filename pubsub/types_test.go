package pubsub

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ball,score", []string{"ball", "score"}},
		{" ball , score ,", []string{"ball", "score"}},
		{"ball,ball,Ball", []string{"ball", "Ball"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeywords(tt.in))
		})
	}
}

func TestTopicIdentity(t *testing.T) {
	a := NewTopic("sports", "ball")
	b := NewTopic(" sports ", "score")
	b.ID = 7

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(NewTopic("Sports")))
	assert.Equal(t, "sports", b.Key())
}

func TestEventDefaults(t *testing.T) {
	topic := NewTopic("sports", "ball", "score")

	t.Run("inherits topic keywords", func(t *testing.T) {
		e := NewEvent(topic, "Game Result", "3-1")
		assert.Equal(t, []string{"ball", "score"}, e.Keywords)
		assert.False(t, e.Published())
	})

	t.Run("own keywords win", func(t *testing.T) {
		e := NewEvent(topic, "Transfer", "", "money")
		assert.Equal(t, []string{"money"}, e.Keywords)
	})

	t.Run("equality is topic plus title", func(t *testing.T) {
		e1 := NewEvent(topic, "Game Result", "3-1")
		e2 := NewEvent(topic, "Game Result", "0-0")
		e3 := NewEvent(NewTopic("news"), "Game Result", "3-1")
		assert.True(t, e1.Equal(e2))
		assert.False(t, e1.Equal(e3))
	})

	t.Run("event does not alias topic keywords", func(t *testing.T) {
		e := NewEvent(topic, "Game Result", "")
		e.Keywords[0] = "changed"
		assert.Equal(t, "ball", topic.Keywords[0])
	})
}

func TestClone(t *testing.T) {
	e := NewEvent(NewTopic("sports", "ball"), "Game Result", "", "goal")
	c := e.Clone()
	c.Keywords[0] = "changed"
	c.Topic.Keywords[0] = "changed"

	assert.Equal(t, "goal", e.Keywords[0])
	assert.Equal(t, "ball", e.Topic.Keywords[0])
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrTopicExists))
	assert.True(t, IsRejection(fmt.Errorf("publish: %w", ErrTopicNotFound)))
	assert.False(t, IsRejection(fmt.Errorf("nats: timeout")))
	assert.False(t, IsRejection(nil))
}
