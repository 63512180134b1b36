// Package ratelimit gates outbound request issuance per destination key.
//
// Each destination key (typically one per target platform) carries sliding
// minute/hour/day window ceilings, a burst limit measured over the trailing
// cooldown period, and an adaptive backoff multiplier that doubles on remote
// rate-limit responses, grows gently on transport failures, and decays back
// toward 1.0 on successes.
//
// The limiter exposes both a non-blocking admission check and a blocking
// pre-flight wait:
//
//	limiter, _ := ratelimit.New(limits, log)
//
//	if err := limiter.Wait(ctx, "twitter"); err != nil {
//		return err // ctx cancelled mid-wait
//	}
//	if !limiter.Allow("twitter") {
//		// ceiling reached, try again next cycle
//	}
//
// Allow never blocks and Wait never consumes a slot; callers pair them so a
// request is recorded only when it is actually issued.
package ratelimit
