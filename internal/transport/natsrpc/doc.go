// Package natsrpc carries the tidings broker operations and push callbacks
// over NATS request/reply.
//
// Subjects, for the default prefix "tidings":
//
//	tidings.rpc.<operation>      broker operations, served by Server
//	<identity>.notify            event delivery, served by Listener
//	<identity>.advertise         topic advertisement, served by Listener
//
// An identity is a subject prefix owned by one agent, for example
// "tidings.agent.<uuid>". The broker reaches a connected agent by sending a
// request to its identity subjects; a missing responder or a timeout is how it
// learns the agent is unreachable.
//
// Requests are plain JSON documents. Replies carry a "type":"reply" marker and
// a rejection code that Client maps back onto the pubsub sentinel errors.
package natsrpc
