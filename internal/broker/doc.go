// Package broker implements the tidings broker core: topic and subscription
// bookkeeping, the keyword content filter, ID allocation, and the delivery
// engine that keeps retrying until every interested subscriber has been
// reached.
//
// Design decisions:
//   - One lock per collection: the connection registry, the subscription table,
//     the content filter and each retry queue are guarded independently so a
//     publish never serializes behind an unrelated subscribe
//   - At-least-once delivery: every event and advertisement owns a pending set
//     of subscriber IDs that is drained as subscribers are reached
//   - Snapshot membership: pending sets are filled once, at publish or
//     advertise time; later unsubscribes do not purge them
//   - Fail fast: each callback runs under its own timeout so one unreachable
//     subscriber cannot stall a sweep
//   - No dead letters: an item leaves its retry queue only when its pending set
//     is empty
//
// Component hierarchy:
//   - Broker: the façade clients call into
//     ├── connectionRegistry: subscriber ID → reachable handle
//     ├── subscriptionTable: topic → subscriber IDs, plus topic/event counters
//     ├── contentFilter: keyword → subscriber IDs
//     └── engine: immediate attempt, retry queue and sweep loop, one for
//     events and one for advertisements
//
// Delivery flow:
//
//	Publish ──► stamp ID ──► audience = topic subscribers ∪ keyword matches
//	        ──► immediate attempt ──► leftovers ──► retry queue ──► sweep loop
//
// Example usage:
//
//	b, err := broker.New(broker.WithSweepInterval(time.Second))
//	if err != nil {
//	    return err
//	}
//	b.Start(ctx)
//	defer b.Close()
//
//	id, _ := b.Connect(ctx, subscriber)
//	topicID, _ := b.AddTopic(ctx, pubsub.NewTopic("sports", "ball", "score"))
//	b.AddSubscriber(ctx, id, pubsub.Topic{ID: topicID})
//	b.Publish(ctx, pubsub.NewEvent(pubsub.Topic{ID: topicID}, "Game Result", "3-1"))
//
// Delivery of two different events to the same subscriber is not ordered:
// when both are waiting for retry, the subscriber may see them in either order.
package broker
