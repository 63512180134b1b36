package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"smscraper/pkg/logger"
)

// FailureKind describes the class of failure reported to the limiter
type FailureKind string

const (
	// FailureRateLimited is a remote 429 outcome
	FailureRateLimited FailureKind = "rate_limited"
	// FailureTransport is a timeout or connection-level outcome
	FailureTransport FailureKind = "transport"
)

const (
	// historyWindow bounds how far back request history is kept; the daily
	// window is the longest one consulted.
	historyWindow = 24 * time.Hour

	backoffDecay           = 0.8
	backoffGrowthRateHit   = 2.0
	backoffGrowthTransport = 1.5

	// DefaultMaxBackoff caps the backoff multiplier
	DefaultMaxBackoff = 60.0
)

// Config holds the sliding-window ceilings and cooldown behaviour for one
// destination key
type Config struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	BurstLimit        int
	CooldownPeriod    time.Duration
	JitterFraction    float64
}

// Validate checks the config invariants
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 || c.RequestsPerHour <= 0 || c.RequestsPerDay <= 0 {
		return fmt.Errorf("window ceilings must be positive")
	}
	if c.BurstLimit <= 0 {
		return fmt.Errorf("burst limit must be positive")
	}
	if c.BurstLimit > c.RequestsPerMinute {
		return fmt.Errorf("burst limit %d exceeds requests per minute %d", c.BurstLimit, c.RequestsPerMinute)
	}
	if c.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown period must be positive")
	}
	if c.JitterFraction < 0 || c.JitterFraction >= 1 {
		return fmt.Errorf("jitter fraction must be in [0, 1)")
	}
	return nil
}

// defaultConfig is the fallback entry for destination keys with no explicit
// configuration
var defaultConfig = Config{
	RequestsPerMinute: 30,
	RequestsPerHour:   500,
	RequestsPerDay:    2000,
	BurstLimit:        10,
	CooldownPeriod:    time.Second,
	JitterFraction:    0.1,
}

// keyState is the mutable rate state for one destination key
type keyState struct {
	history     []time.Time
	lastRequest time.Time
	backoff     float64
}

// Stats is a read-only snapshot of one destination key's rate state
type Stats struct {
	Destination        string
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsLastDay    int
	BurstCount         int
	BackoffMultiplier  float64
	LastRequest        time.Time
}

// Limiter gates request issuance per destination key. It enforces sliding
// minute/hour/day window ceilings and a burst limit, and applies an adaptive
// backoff multiplier that grows on failures and decays on successes.
//
// The burst counter needs no background timer: a request's burst contribution
// expires once it falls outside the trailing cooldown period, which matches
// scheduling a decrement cooldown-period after the request.
type Limiter struct {
	mu         sync.Mutex
	limits     map[string]Config
	states     map[string]*keyState
	maxBackoff float64
	log        logger.Logger

	// now is swapped out by tests
	now func() time.Time
}

// New creates a Limiter from a per-destination config table. A "default"
// entry, when present, serves unknown keys; otherwise a built-in fallback is
// used.
func New(limits map[string]Config, log logger.Logger) (*Limiter, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	normalized := make(map[string]Config, len(limits))
	for key, cfg := range limits {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("rate limit for %q: %w", key, err)
		}
		normalized[strings.ToLower(key)] = cfg
	}

	return &Limiter{
		limits:     normalized,
		states:     make(map[string]*keyState),
		maxBackoff: DefaultMaxBackoff,
		log:        log,
		now:        time.Now,
	}, nil
}

// SetLimit installs or replaces the config for one destination key
func (l *Limiter) SetLimit(key string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[strings.ToLower(key)] = cfg
	return nil
}

// Limit returns the config governing a destination key
func (l *Limiter) Limit(key string) Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitLocked(strings.ToLower(key))
}

func (l *Limiter) limitLocked(key string) Config {
	if cfg, ok := l.limits[key]; ok {
		return cfg
	}
	if cfg, ok := l.limits["default"]; ok {
		return cfg
	}
	return defaultConfig
}

// stateLocked lazily creates the mutable state for a key
func (l *Limiter) stateLocked(key string) *keyState {
	st, ok := l.states[key]
	if !ok {
		st = &keyState{backoff: 1.0}
		l.states[key] = st
	}
	return st
}

// Allow is the non-blocking admission check. It returns false when any
// sliding window or the burst counter is at its ceiling, or while the key is
// inside an active backoff window. On true the request is recorded.
func (l *Limiter) Allow(key string) bool {
	key = strings.ToLower(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cfg := l.limitLocked(key)
	st := l.stateLocked(key)
	st.prune(now)

	if l.inBackoffLocked(st, cfg, now) {
		l.log.DebugWithFields("request denied, key in backoff", map[string]interface{}{
			"destination": key,
			"backoff":     st.backoff,
		})
		return false
	}

	minute, hour, day := st.windowCounts(now)
	if minute >= cfg.RequestsPerMinute || hour >= cfg.RequestsPerHour || day >= cfg.RequestsPerDay {
		l.log.DebugWithFields("request denied, window ceiling reached", map[string]interface{}{
			"destination":  key,
			"last_minute":  minute,
			"last_hour":    hour,
			"last_day":     day,
		})
		return false
	}

	if st.burstCount(now, cfg.CooldownPeriod) >= cfg.BurstLimit {
		l.log.DebugWithFields("request denied, burst limit reached", map[string]interface{}{
			"destination": key,
			"burst_limit": cfg.BurstLimit,
		})
		return false
	}

	st.history = append(st.history, now)
	st.lastRequest = now
	return true
}

// Wait computes the delay the caller must observe before issuing a request on
// key and blocks for that duration. The delay is the backoff-scaled cooldown
// with jitter applied, reduced by the time already elapsed since the key's
// last request. Wait honors ctx cancellation.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	key = strings.ToLower(key)

	l.mu.Lock()
	now := l.now()
	cfg := l.limitLocked(key)
	st := l.stateLocked(key)
	delay := l.delayLocked(st, cfg, now)
	l.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	logger.LogRateLimit(key, delay.Seconds())

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// delayLocked computes cooldown × backoff × (1 ± jitter) minus the time
// already elapsed since the last request, floored at zero.
func (l *Limiter) delayLocked(st *keyState, cfg Config, now time.Time) time.Duration {
	delay := float64(cfg.CooldownPeriod) * st.backoff

	if cfg.JitterFraction > 0 {
		jitter := (rand.Float64()*2 - 1) * cfg.JitterFraction
		delay *= 1 + jitter
	}
	if delay < 0 {
		delay = 0
	}

	if !st.lastRequest.IsZero() {
		elapsed := now.Sub(st.lastRequest)
		if float64(elapsed) >= delay {
			return 0
		}
		return time.Duration(delay) - elapsed
	}

	return 0
}

// inBackoffLocked reports whether the key is inside its active backoff window
func (l *Limiter) inBackoffLocked(st *keyState, cfg Config, now time.Time) bool {
	if st.backoff <= 1.0 || st.lastRequest.IsZero() {
		return false
	}
	window := time.Duration(float64(cfg.CooldownPeriod) * st.backoff)
	return now.Sub(st.lastRequest) < window
}

// OnSuccess decays the key's backoff multiplier toward 1.0
func (l *Limiter) OnSuccess(key string) {
	key = strings.ToLower(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(key)
	if st.backoff > 1.0 {
		st.backoff = st.backoff * backoffDecay
		if st.backoff < 1.0 {
			st.backoff = 1.0
		}
		l.log.DebugWithFields("backoff reduced", map[string]interface{}{
			"destination": key,
			"backoff":     st.backoff,
		})
	}
}

// OnFailure grows the key's backoff multiplier. Rate-limit failures double it
// and refresh the last-request timestamp, extending the backoff window;
// transport failures apply a gentler growth without extending the window.
func (l *Limiter) OnFailure(key string, kind FailureKind) {
	key = strings.ToLower(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(key)
	switch kind {
	case FailureRateLimited:
		st.backoff = min(l.maxBackoff, st.backoff*backoffGrowthRateHit)
		st.lastRequest = l.now()
		l.log.WarnWithFields("rate limit hit, backoff increased", map[string]interface{}{
			"destination": key,
			"backoff":     st.backoff,
		})
	case FailureTransport:
		st.backoff = min(l.maxBackoff, st.backoff*backoffGrowthTransport)
		l.log.DebugWithFields("transport failure, backoff increased", map[string]interface{}{
			"destination": key,
			"backoff":     st.backoff,
		})
	}
}

// Reset clears the history, burst and backoff state for one destination key
func (l *Limiter) Reset(key string) {
	key = strings.ToLower(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, key)
}

// ResetAll clears state for every destination key
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = make(map[string]*keyState)
}

// Stats returns a snapshot of one destination key's rate state
func (l *Limiter) Stats(key string) Stats {
	key = strings.ToLower(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cfg := l.limitLocked(key)
	st := l.stateLocked(key)
	st.prune(now)

	minute, hour, day := st.windowCounts(now)
	return Stats{
		Destination:        key,
		RequestsLastMinute: minute,
		RequestsLastHour:   hour,
		RequestsLastDay:    day,
		BurstCount:         st.burstCount(now, cfg.CooldownPeriod),
		BackoffMultiplier:  st.backoff,
		LastRequest:        st.lastRequest,
	}
}

// prune drops history entries older than the longest window
func (st *keyState) prune(now time.Time) {
	cutoff := now.Add(-historyWindow)
	i := 0
	for i < len(st.history) && st.history[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		copy(st.history, st.history[i:])
		st.history = st.history[:len(st.history)-i]
	}
}

// windowCounts returns the number of recorded requests inside the trailing
// minute, hour and day windows
func (st *keyState) windowCounts(now time.Time) (minute, hour, day int) {
	cutoffMinute := now.Add(-time.Minute)
	cutoffHour := now.Add(-time.Hour)
	cutoffDay := now.Add(-historyWindow)

	for _, ts := range st.history {
		if ts.After(cutoffDay) {
			day++
		}
		if ts.After(cutoffHour) {
			hour++
		}
		if ts.After(cutoffMinute) {
			minute++
		}
	}
	return minute, hour, day
}

// burstCount is the number of recorded requests inside the trailing cooldown
// period
func (st *keyState) burstCount(now time.Time, cooldown time.Duration) int {
	cutoff := now.Add(-cooldown)
	count := 0
	for i := len(st.history) - 1; i >= 0; i-- {
		if !st.history[i].After(cutoff) {
			break
		}
		count++
	}
	return count
}
