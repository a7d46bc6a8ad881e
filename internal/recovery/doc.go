// Package recovery is the cross-cutting failure-handling layer: error
// classification, policy-driven retry with exponential backoff, per-
// dependency circuit breakers, and a durable dead-letter queue.
//
// Every raw error is classified into a category (database, network,
// data_quality, ...) with an attached recovery strategy. Retriable
// categories get a bounded budget with jittered backoff; memory,
// permission, and configuration failures escalate immediately. Items that
// exhaust recovery are parked in the dead-letter store for later re-drain.
package recovery
