package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"smscraper/pkg/errors"
	"smscraper/pkg/logger"
	"smscraper/pkg/proxy"
	"smscraper/pkg/ratelimit"
)

// RateLimiter is the pacing surface the dispatcher drives. It is satisfied by
// *ratelimit.Limiter.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
	Allow(key string) bool
	OnSuccess(key string)
	OnFailure(key string, kind ratelimit.FailureKind)
}

// ProxyProvider hands out egress proxies and receives health reports. It is
// satisfied by *proxy.Pool.
type ProxyProvider interface {
	Acquire(ctx context.Context) (*proxy.Proxy, bool)
	ReportSuccess(address string)
	ReportFailure(address string)
}

// IdentitySource supplies the User-Agent identity for a destination key. It is
// satisfied by *useragent.Rotator.
type IdentitySource interface {
	Identity(key string) string
}

// Request describes one outbound request to dispatch.
type Request struct {
	Method        string
	URL           string
	Header        http.Header
	Body          []byte
	Destination   string // rate limit key, usually the platform name
	ProxyRequired bool
}

// Response is the terminal result of a dispatched request.
type Response struct {
	StatusCode   int
	Header       http.Header
	Body         []byte
	ProxyAddress string
	RequestID    string
	Attempts     int
	Duration     time.Duration
}

const (
	DefaultMaxConcurrent  = 5
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 4 * time.Second
	DefaultRetryMaxDelay  = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Options configures a Dispatcher. Zero values fall back to the defaults
// above.
type Options struct {
	MaxConcurrent  int64
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RequestTimeout time.Duration
	Client         *http.Client
	Logger         logger.Logger
	Metrics        *Metrics
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
}

// Dispatcher issues outbound requests through the rate limiter and proxy
// pool, retrying transient outcomes with exponential backoff.
type Dispatcher struct {
	opts       Options
	limiter    RateLimiter
	proxies    ProxyProvider
	identities IdentitySource
	sem        *semaphore.Weighted
	log        logger.Logger
	metrics    *Metrics

	mu      sync.Mutex
	clients map[string]*http.Client
	rng     *rand.Rand
}

// New creates a Dispatcher. limiter is required; proxies and identities may
// be nil when the caller does not use them.
func New(limiter RateLimiter, proxies ProxyProvider, identities IdentitySource, opts Options) (*Dispatcher, error) {
	if limiter == nil {
		return nil, fmt.Errorf("dispatch: rate limiter is required")
	}
	opts.applyDefaults()

	return &Dispatcher{
		opts:       opts,
		limiter:    limiter,
		proxies:    proxies,
		identities: identities,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		log:        opts.Logger,
		metrics:    opts.Metrics,
		clients:    make(map[string]*http.Client),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Send dispatches req, blocking at the concurrency gate, pacing through the
// rate limiter and retrying retryable outcomes up to MaxAttempts. The
// returned error, when non-nil, is an *errors.Error carrying the outcome
// classification.
func (d *Dispatcher) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == "" {
		return nil, errors.New(errors.TypeUnknown, "empty request", 0)
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, d.finish(errors.Wrap(errors.TypeCancelled, "request cancelled before admission", err))
	}
	defer d.sem.Release(1)

	d.metrics.AddInFlight(1)
	defer d.metrics.AddInFlight(-1)

	destination := strings.ToLower(strings.TrimSpace(req.Destination))
	requestID := uuid.NewString()
	log := d.log.WithFields(map[string]interface{}{
		"request_id":  requestID,
		"destination": destination,
		"url":         req.URL,
	})

	start := time.Now()
	var lastErr *errors.Error

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			d.metrics.IncRetries()
			if err := d.waitRetry(ctx, attempt, log); err != nil {
				return nil, d.finish(err)
			}
		}

		if err := d.limiter.Wait(ctx, destination); err != nil {
			return nil, d.finish(errors.Wrap(errors.TypeCancelled, "request cancelled while pacing", err))
		}
		if !d.limiter.Allow(destination) {
			lastErr = errors.New(errors.TypeRateLimited, "denied by local rate limiter", 0)
			log.DebugWithFields("attempt denied locally", map[string]interface{}{"attempt": attempt})
			continue
		}

		resp, err := d.attempt(ctx, req, destination, requestID, attempt, log)
		if err == nil {
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			d.metrics.IncOutcome("success")
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, d.finish(errors.Wrap(errors.TypeCancelled, "request cancelled", ctx.Err()))
		}
		lastErr = err
		if !errors.IsRetryable(err.Type) {
			return nil, d.finish(err)
		}
	}

	if lastErr == nil {
		lastErr = errors.New(errors.TypeUnknown, "no attempts executed", 0)
	}
	log.WarnWithFields("request failed after all attempts", map[string]interface{}{
		"attempts": d.opts.MaxAttempts,
		"error":    lastErr.Error(),
	})
	return nil, d.finish(lastErr)
}

// attempt issues a single upstream attempt and classifies its outcome.
func (d *Dispatcher) attempt(ctx context.Context, req *Request, destination, requestID string, attempt int, log logger.Logger) (*Response, *errors.Error) {
	var (
		client       = d.opts.Client
		proxyAddress string
	)

	if req.ProxyRequired {
		if d.proxies == nil {
			return nil, errors.New(errors.TypeProxyExhausted, "no proxy provider configured", 0)
		}
		p, ok := d.proxies.Acquire(ctx)
		if !ok {
			return nil, errors.New(errors.TypeProxyExhausted, "no working proxies available", 0)
		}
		proxyAddress = p.Address
		pc, err := d.clientFor(p)
		if err != nil {
			d.proxies.ReportFailure(proxyAddress)
			return nil, errors.Wrap(errors.TypeProxyExhausted, "proxy client setup failed", err)
		}
		client = pc
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
	defer cancel()

	httpReq, err := d.buildRequest(attemptCtx, req, destination, requestID)
	if err != nil {
		return nil, errors.Wrap(errors.TypeUnknown, "build request", err)
	}

	started := time.Now()
	httpResp, err := client.Do(httpReq)
	d.metrics.ObserveDuration(time.Since(started))

	if err != nil {
		d.limiter.OnFailure(destination, ratelimit.FailureTransport)
		log.WarnWithFields("transport failure", map[string]interface{}{
			"attempt": attempt,
			"proxy":   proxyAddress,
			"error":   err.Error(),
		})
		return nil, errors.Wrap(errors.TypeTransport, "transport failure", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		// The upstream throttled us: both the pacing state and the proxy
		// that carried the request take the penalty.
		d.limiter.OnFailure(destination, ratelimit.FailureRateLimited)
		if proxyAddress != "" {
			d.proxies.ReportFailure(proxyAddress)
		}
		log.WarnWithFields("upstream rate limited", map[string]interface{}{
			"attempt": attempt,
			"proxy":   proxyAddress,
		})
		return nil, errors.New(errors.TypeRateLimited, "upstream rate limited", httpResp.StatusCode)

	case httpResp.StatusCode >= http.StatusBadRequest:
		if proxyAddress != "" {
			d.proxies.ReportFailure(proxyAddress)
		}
		return nil, errors.New(errors.TypeUpstream,
			fmt.Sprintf("upstream returned status %d", httpResp.StatusCode), httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		d.limiter.OnFailure(destination, ratelimit.FailureTransport)
		return nil, errors.Wrap(errors.TypeTransport, "read response body", err)
	}

	d.limiter.OnSuccess(destination)
	if proxyAddress != "" {
		d.proxies.ReportSuccess(proxyAddress)
	}

	return &Response{
		StatusCode:   httpResp.StatusCode,
		Header:       httpResp.Header.Clone(),
		Body:         body,
		ProxyAddress: proxyAddress,
		RequestID:    requestID,
	}, nil
}

func (d *Dispatcher) buildRequest(ctx context.Context, req *Request, destination, requestID string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && d.identities != nil {
		httpReq.Header.Set("User-Agent", d.identities.Identity(destination))
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	return httpReq, nil
}

// clientFor returns the cached http.Client routed through p, building one on
// first use.
func (d *Dispatcher) clientFor(p *proxy.Proxy) (*http.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[p.Address]; ok {
		return client, nil
	}

	proxyURL, err := p.URL()
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	d.clients[p.Address] = client
	return client, nil
}

// waitRetry blocks for the jittered exponential delay before retry number
// attempt, honoring ctx.
func (d *Dispatcher) waitRetry(ctx context.Context, attempt int, log logger.Logger) *errors.Error {
	delay := d.retryDelay(attempt)
	log.DebugWithFields("waiting before retry", map[string]interface{}{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.TypeCancelled, "request cancelled during retry wait", ctx.Err())
	}
}

// retryDelay doubles the base delay per prior attempt, caps it, then jitters
// within ±25%.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.opts.RetryBaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= d.opts.RetryMaxDelay {
			break
		}
	}
	if delay > d.opts.RetryMaxDelay {
		delay = d.opts.RetryMaxDelay
	}

	d.mu.Lock()
	factor := 0.75 + d.rng.Float64()*0.5
	d.mu.Unlock()

	jittered := time.Duration(float64(delay) * factor)
	if jittered > d.opts.RetryMaxDelay {
		jittered = d.opts.RetryMaxDelay
	}
	return jittered
}

// finish records the final outcome metric for a failed dispatch.
func (d *Dispatcher) finish(err *errors.Error) *errors.Error {
	d.metrics.IncOutcome(string(err.Type))
	return err
}
