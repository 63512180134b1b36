// Package scraper orchestrates scrape sessions on top of the dispatcher.
//
// A Session composes a Sender (the request dispatcher), an Adapter (the
// platform-specific URL builder and payload mapper) and a RecordStore. It
// scrapes targets one by one: a target that fails with a classified error is
// skipped, never aborting the rest of the run, while context cancellation
// stops the session immediately.
package scraper
