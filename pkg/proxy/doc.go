// Package proxy maintains a rotating pool of validated egress proxies.
//
// Candidates are fetched concurrently from independent, failure-isolated
// sources, deduplicated by address and validated against echo endpoints under
// a bounded concurrency. Working proxies are handed out uniformly at random;
// per-proxy health counters re-admit recovering proxies and permanently evict
// those that cross the failure threshold. The full set, counters included,
// can be persisted to a JSON cache and reloaded across restarts.
//
// The pool degrades gracefully: unreachable sources and failed validations
// are logged and swallowed, and an empty working set is a valid terminal
// state that callers must handle.
package proxy
