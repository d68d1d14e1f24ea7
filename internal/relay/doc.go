// Package relay provides the message-bus service layer.
//
// # Overview
//
// Service is the complete public surface of the bus: producers call Send,
// consumers call Recv (or Poll on a fixed interval), and operators go
// through the channel passthroughs. No collaborator touches the tables
// directly.
//
// # Delivery Semantics
//
// A message delivered by Recv is never delivered again to the same
// consumer: the bookmark advances in the same transaction as the read.
// This is an at-most-once-per-advance design; a consumer that crashes
// between fetching and acting on messages does not see them again. Peek is
// the read-only counterpart and never moves any bookmark.
//
// # Collaborator Boundaries
//
//   - IdentityResolver maps identity strings to stable agent ids.
//     AgentDirectory is the store-backed implementation, registering
//     identities on first use.
//   - EventSink receives best-effort notifications after durable writes.
//     Emission failure never affects the write that triggered it.
//
// # Polling
//
// There is no push mechanism. Front-ends poll on the order of one second:
//
//	d, err := svc.Poll(ctx, "ops", agentID)
//	// d.Messages, d.Count, d.Senders
package relay
