// Package pubsub defines the vocabulary shared by the tidings broker, its
// transports and its clients.
//
// Topics are named channels that carry a default keyword set. Events are
// published against a topic and carry their own keywords, which the broker uses
// to reach subscribers that registered interest in a keyword without
// subscribing to the topic itself.
//
// Key concepts:
//   - Topic identity is its name: two topics with the same name are the same topic
//   - Event identity is its topic plus title
//   - IDs are assigned by the broker and are never reused
//   - Subscriber IDs are permanent; a client keeps its ID across reconnects
//
// The Broker interface is the full set of operations a client can invoke. The
// Subscriber interface is the set of push callbacks the broker invokes on a
// connected client. Both are transport agnostic: the in-process broker and the
// NATS proxy implement Broker, and an in-process agent or a NATS remote handle
// implement Subscriber.
//
// Values crossing these interfaces are snapshots. Mutating a Topic or Event
// after handing it to the broker never affects broker state.
package pubsub
