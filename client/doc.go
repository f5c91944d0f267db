// Package client implements a tidings agent: a participant that advertises
// topics, publishes events, and subscribes by topic or keyword.
//
// An Agent talks to any pubsub.Broker, in process or remote, and is itself
// the pubsub.Subscriber the broker pushes to. Outbound calls are retried a
// bounded number of times while the broker is unreachable; a rejection such as
// pubsub.ErrTopicExists ends the call at once.
//
// An agent that wants to leave and come back later calls SaveState, which
// unbinds it from the broker and writes its bookkeeping to disk. LoadState
// restores it, and Start then reconnects under the saved subscriber ID so the
// deliveries queued in the meantime arrive.
package client
