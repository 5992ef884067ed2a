// Package dedupe provides content-hash message deduplication using a
// time-based index so redelivered messages resolve to their original ID.
package dedupe
