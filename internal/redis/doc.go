// Package redis implements the cross-process channel layer on Redis Pub/Sub.
//
// Layer satisfies domain.GroupRegistry: membership stays local to each
// process while publishes travel through Redis, so a coordinator in one
// process and the connection handlers in another share one logical set of
// groups. Presence keeps a heartbeat hash of running relay processes.
package redis
