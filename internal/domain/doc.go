// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (envelope.go, group.go, reply.go, errors.go)
// with the shared message vocabulary and cross-cutting interfaces. No implementation code - just contracts
// and the pure helpers that derive names from them.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
