// Package app assembles the relay runtime shared by every binary.
//
// Builds the group registry (in-process, or spanning processes through the
// Redis channel layer when REDIS_URL is set), the request/reply coordinator,
// instance presence and the Prometheus registry they report to.
package app
