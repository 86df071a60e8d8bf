// Package groups implements the in-process group registry.
//
// A group is a name mapped to a set of members. Publish snapshots the member set under a read lock
// and delivers outside of it, so join/leave never observe a half-updated set and a slow member never
// holds the lock. Members own their queues: Mailbox is the built-in bounded FIFO member used by
// coordinators, connection handlers bring their own.
package groups
