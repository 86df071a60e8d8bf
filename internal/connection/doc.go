// Package connection bridges one remote peer to the group registry.
//
// A Handler owns a Transport (WebSocket or a newline-delimited JSON stream),
// joins the broadcast group on connect, greets the peer and then services two
// inputs concurrently: frames read from the peer are classified and routed
// (replies to their correlation group, new messages to the broadcast group),
// while envelopes fanned out by the registry are rendered into outbound
// frames and queued on a per-connection writer.
//
// Delivery from the registry never blocks. A peer whose send queue is full
// is disconnected rather than allowed to stall the publisher.
package connection
