// Package coordination implements reply-seeking broadcasts.
//
// A Coordinator mints a message id, joins a private reply group named after it, publishes the
// tagged request to the broadcast group and collects matching replies until the deadline, the
// caller's stop count, or context cancellation. The reply group is left on every exit path, so
// correlation groups never outlive their request. Concurrent rounds share nothing but the registry.
package coordination
