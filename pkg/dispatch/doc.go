// Package dispatch issues outbound HTTP requests through the rate limiter,
// proxy pool and identity rotator.
//
// A Dispatcher admits requests through a weighted semaphore, paces each
// attempt through the destination's rate limit, and retries transient
// outcomes with capped exponential backoff. Outcomes feed back into the
// limiter and the proxy pool: a 429 penalizes both, transport failures grow
// the limiter's backoff only, and other upstream errors count against the
// proxy that carried the request.
package dispatch
