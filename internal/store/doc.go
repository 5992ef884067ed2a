// Package store owns the canonical set of conversations, messages, and
// participants for the parley gateway.
//
// All mutation flows through the Store interface; the in-memory MemoryStore
// is the reference implementation and the substitution point for a durable
// backend. Appends are idempotent under content-hash deduplication, and
// every committed mutation is surfaced to registered observers using the
// wire-level event names dashboards consume.
package store
