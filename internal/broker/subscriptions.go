package broker

import (
	"slices"
	"sync"
	"time"

	"github.com/casualjim/tidings/pkg/idset"
	"github.com/casualjim/tidings/pubsub"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type subscriptionRecord struct {
	topic       pubsub.Topic
	subscribers *idset.Set
}

// subscriptionTable holds one record per advertised topic. Records are never
// deleted. The topic and event counters live here because both are only
// advanced while resolving a topic.
type subscriptionTable struct {
	mu          sync.RWMutex
	lastTopicID int
	lastEventID int
	byName      *orderedmap.OrderedMap[string, *subscriptionRecord]
	byID        map[int]*subscriptionRecord
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		byName: orderedmap.New[string, *subscriptionRecord](),
		byID:   make(map[int]*subscriptionRecord),
	}
}

// add registers topic under the next topic ID. It returns false when a topic
// with the same name already exists.
func (s *subscriptionTable) add(topic pubsub.Topic) (pubsub.Topic, bool) {
	stored := pubsub.NewTopic(topic.Name, topic.Keywords...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName.Get(stored.Key()); exists {
		return pubsub.Topic{}, false
	}
	s.lastTopicID++
	stored.ID = s.lastTopicID
	rec := &subscriptionRecord{topic: stored, subscribers: idset.New()}
	s.byName.Set(stored.Key(), rec)
	s.byID[stored.ID] = rec
	return stored.Clone(), true
}

// resolve finds the record by ID, or by name when the topic carries no ID.
// Callers hold s.mu.
func (s *subscriptionTable) resolve(topic pubsub.Topic) (*subscriptionRecord, bool) {
	if topic.ID != 0 {
		rec, ok := s.byID[topic.ID]
		return rec, ok
	}
	return s.byName.Get(topic.Key())
}

func (s *subscriptionTable) subscribe(id int, topic pubsub.Topic) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resolve(topic)
	if !ok {
		return false, pubsub.ErrTopicNotFound
	}
	return rec.subscribers.Add(id), nil
}

func (s *subscriptionTable) unsubscribe(id int, topic pubsub.Topic) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resolve(topic)
	if !ok {
		return false, pubsub.ErrTopicNotFound
	}
	return rec.subscribers.Remove(id), nil
}

func (s *subscriptionTable) unsubscribeAll(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pair := s.byName.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.subscribers.Remove(id)
	}
}

// stamp assigns the next event ID to event, binds it to the canonical topic and
// returns it together with a copy of the topic's subscriber set. The event
// counter is untouched when the topic is unknown. An event without keywords
// takes those of the stored topic.
func (s *subscriptionTable) stamp(event pubsub.Event) (pubsub.Event, *idset.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resolve(event.Topic)
	if !ok {
		return pubsub.Event{}, nil, pubsub.ErrTopicNotFound
	}
	s.lastEventID++
	stamped := event.Clone()
	stamped.ID = s.lastEventID
	stamped.Topic = rec.topic.Clone()
	if len(stamped.Keywords) == 0 {
		stamped.Keywords = slices.Clone(rec.topic.Keywords)
	}
	stamped.PublishedAt = strfmt.DateTime(time.Now().UTC())
	return stamped, rec.subscribers.Clone(), nil
}

func (s *subscriptionTable) topics() []pubsub.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pubsub.Topic, 0, s.byName.Len())
	for pair := s.byName.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.topic.Clone())
	}
	return out
}

// TopicSubscribers is a topic together with the IDs subscribed to it.
type TopicSubscribers struct {
	Topic       pubsub.Topic `json:"topic"`
	Subscribers []int        `json:"subscribers"`
}

func (s *subscriptionTable) snapshot() []TopicSubscribers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TopicSubscribers, 0, s.byName.Len())
	for pair := s.byName.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, TopicSubscribers{
			Topic:       pair.Value.topic.Clone(),
			Subscribers: pair.Value.subscribers.Slice(),
		})
	}
	return out
}
