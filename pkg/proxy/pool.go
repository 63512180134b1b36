package proxy

import (
	"context"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"smscraper/pkg/logger"
)

// Options configures a Pool
type Options struct {
	// Sources to fetch candidates from. May be empty: the pool then serves
	// only cached or statically seeded proxies.
	Sources []Source

	// TestURLs are echo endpoints used to confirm a proxy can complete a
	// round trip; any 2xx response through the proxy counts as success.
	TestURLs []string

	// ValidationTimeout bounds one proxy check against one test URL
	ValidationTimeout time.Duration

	// ValidationConcurrency bounds simultaneous proxy checks
	ValidationConcurrency int64

	// FailThreshold is the consecutive-failure count that evicts a proxy
	// from the working set for the remainder of the process run
	FailThreshold int

	// RotationInterval is how long the working set is served before a
	// rotation is triggered
	RotationInterval time.Duration

	// LowWaterMark triggers rotation when the working count drops below it
	LowWaterMark int

	// ShuffleThreshold selects the cheap rotation path (reshuffle) when at
	// least this many proxies are working
	ShuffleThreshold int

	// CacheFile persists the proxy set across restarts; empty disables
	CacheFile string

	// CacheMaxAge ignores a cache file older than this bound
	CacheMaxAge time.Duration

	Logger logger.Logger
}

func (o *Options) applyDefaults() {
	if o.ValidationTimeout <= 0 {
		o.ValidationTimeout = 10 * time.Second
	}
	if o.ValidationConcurrency <= 0 {
		o.ValidationConcurrency = 10
	}
	if o.FailThreshold <= 0 {
		o.FailThreshold = 3
	}
	if o.RotationInterval <= 0 {
		o.RotationInterval = 5 * time.Minute
	}
	if o.LowWaterMark <= 0 {
		o.LowWaterMark = 5
	}
	if o.ShuffleThreshold <= 0 {
		o.ShuffleThreshold = 10
	}
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = 7 * 24 * time.Hour
	}
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
}

// Stats is a read-only snapshot of pool health
type Stats struct {
	Total        int
	Working      int
	Evicted      int
	LastRotation time.Time
}

// Pool owns the set of candidate egress proxies, their health state and the
// selection policy. All mutation happens under one mutex; fetch and
// validation network calls run outside it.
type Pool struct {
	opts Options
	log  logger.Logger

	mu           sync.Mutex
	all          map[string]*Proxy
	working      []string
	evicted      map[string]struct{}
	lastRotation time.Time
	refreshing   bool

	rng *rand.Rand
	now func() time.Time

	// newCheckClient builds the HTTP client used to validate one proxy;
	// swapped out by tests.
	newCheckClient func(p *Proxy) (*http.Client, error)
}

// NewPool creates an empty pool. Call Initialize to fetch and validate
// candidates.
func NewPool(opts Options) *Pool {
	opts.applyDefaults()

	p := &Pool{
		opts:    opts,
		log:     opts.Logger,
		all:     make(map[string]*Proxy),
		evicted: make(map[string]struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	p.newCheckClient = p.defaultCheckClient
	return p
}

func (p *Pool) defaultCheckClient(proxy *Proxy) (*http.Client, error) {
	u, err := proxy.URL()
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: p.opts.ValidationTimeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(u),
			DisableKeepAlives: true,
		},
	}, nil
}

// Initialize seeds the pool from the cache file when present and fresh, then
// fetches candidates from all sources and validates them. Source and
// validation failures are logged and swallowed; an empty pool is a valid,
// if degraded, outcome.
func (p *Pool) Initialize(ctx context.Context) error {
	if p.opts.CacheFile != "" {
		if err := p.Load(); err != nil {
			p.log.WarnWithFields("proxy cache load failed", map[string]interface{}{
				"file":  p.opts.CacheFile,
				"error": err.Error(),
			})
		}
	}

	if err := p.refresh(ctx); err != nil {
		return err
	}

	if p.opts.CacheFile != "" {
		if err := p.Save(); err != nil {
			p.log.WarnWithFields("proxy cache save failed", map[string]interface{}{
				"file":  p.opts.CacheFile,
				"error": err.Error(),
			})
		}
	}

	p.mu.Lock()
	p.lastRotation = p.now()
	p.mu.Unlock()

	stats := p.GetStats()
	p.log.InfoWithFields("proxy pool initialized", map[string]interface{}{
		"total":   stats.Total,
		"working": stats.Working,
	})
	return nil
}

// refresh fetches candidates from every source and validates the merged,
// deduplicated set. Only ctx cancellation is returned as an error.
func (p *Pool) refresh(ctx context.Context) error {
	candidates := p.fetchAll(ctx)
	p.admit(candidates)
	return p.validateAll(ctx)
}

// fetchAll runs every source concurrently and merges their candidates.
// A failing source contributes nothing.
func (p *Pool) fetchAll(ctx context.Context) []Candidate {
	type result struct {
		source     string
		candidates []Candidate
		err        error
	}

	results := make(chan result, len(p.opts.Sources))
	for _, src := range p.opts.Sources {
		go func(src Source) {
			candidates, err := src.Fetch(ctx)
			results <- result{source: src.Name(), candidates: candidates, err: err}
		}(src)
	}

	var merged []Candidate
	for range p.opts.Sources {
		res := <-results
		if res.err != nil {
			p.log.WarnWithFields("proxy source fetch failed", map[string]interface{}{
				"source": res.source,
				"error":  res.err.Error(),
			})
			continue
		}
		p.log.DebugWithFields("proxy source fetched", map[string]interface{}{
			"source": res.source,
			"count":  len(res.candidates),
		})
		merged = append(merged, res.candidates...)
	}
	return merged
}

// admit registers candidates not yet known to the pool
func (p *Pool) admit(candidates []Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range candidates {
		if _, ok := p.all[c.Address]; ok {
			continue
		}
		p.all[c.Address] = &Proxy{
			Address:   c.Address,
			Protocol:  c.Protocol,
			Country:   c.Country,
			Anonymity: c.Anonymity,
		}
	}
}

// validateAll checks every known proxy concurrently, bounded by the
// validation semaphore. Proxies that pass are (re)admitted to the working
// set with their failure count cleared; eviction is lifted only here, by a
// fresh successful validation.
func (p *Pool) validateAll(ctx context.Context) error {
	p.mu.Lock()
	pending := make([]*Proxy, 0, len(p.all))
	for _, proxy := range p.all {
		pending = append(pending, proxy)
	}
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(p.opts.ValidationConcurrency)
	var wg sync.WaitGroup

	for _, proxy := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(proxy *Proxy) {
			defer wg.Done()
			defer sem.Release(1)

			ok := p.check(ctx, proxy)
			p.recordValidation(proxy.Address, ok)
		}(proxy)
	}

	wg.Wait()

	p.mu.Lock()
	working := len(p.working)
	p.mu.Unlock()
	p.log.InfoWithFields("proxy validation complete", map[string]interface{}{
		"checked": len(pending),
		"working": working,
	})
	return nil
}

// check confirms the proxy can complete a round trip against any test URL
func (p *Pool) check(ctx context.Context, proxy *Proxy) bool {
	client, err := p.newCheckClient(proxy)
	if err != nil {
		return false
	}

	for _, testURL := range p.opts.TestURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}
	return false
}

// recordValidation applies one validation outcome
func (p *Pool) recordValidation(address string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, exists := p.all[address]
	if !exists {
		return
	}

	proxy.LastChecked = p.now()
	if ok {
		proxy.Working = true
		proxy.FailCount = 0
		delete(p.evicted, address)
		p.addWorkingLocked(address)
	} else {
		proxy.Working = false
		p.removeWorkingLocked(address)
	}
	logger.LogProxyRotation(address, ok)
}

// Acquire returns a uniformly random proxy from the working subset, rotating
// first when the pool is stale. The returned value is a copy; callers report
// outcomes back by address.
func (p *Pool) Acquire(ctx context.Context) (*Proxy, bool) {
	if p.shouldRotate() {
		p.rotate(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.working) == 0 {
		return nil, false
	}

	address := p.working[p.rng.Intn(len(p.working))]
	proxy := *p.all[address]
	return &proxy, true
}

// shouldRotate reports whether the working set is stale
func (p *Pool) shouldRotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refreshing {
		return false
	}
	if p.lastRotation.IsZero() {
		return false // never initialized; nothing to rotate yet
	}
	return p.now().Sub(p.lastRotation) > p.opts.RotationInterval ||
		len(p.working) < p.opts.LowWaterMark
}

// rotate reshuffles the working set when it is still plentiful, and re-runs
// the full fetch+validate cycle when it is scarce.
func (p *Pool) rotate(ctx context.Context) {
	p.mu.Lock()
	if p.refreshing {
		p.mu.Unlock()
		return
	}
	p.refreshing = true
	p.lastRotation = p.now()
	cheap := len(p.working) >= p.opts.ShuffleThreshold
	if cheap {
		p.rng.Shuffle(len(p.working), func(i, j int) {
			p.working[i], p.working[j] = p.working[j], p.working[i]
		})
	}
	p.mu.Unlock()

	if !cheap {
		p.log.Info("proxy pool scarce, re-fetching sources")
		if err := p.refresh(ctx); err != nil {
			p.log.WithError(err).Warn("proxy refresh aborted")
		}
		if p.opts.CacheFile != "" {
			if err := p.Save(); err != nil {
				p.log.WithError(err).Warn("proxy cache save failed")
			}
		}
	}

	p.mu.Lock()
	p.refreshing = false
	p.mu.Unlock()
}

// ReportSuccess records a successful round trip through the proxy and
// re-admits it to the working set unless it has been evicted.
func (p *Pool) ReportSuccess(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.all[address]
	if !ok {
		return
	}

	proxy.SuccessCount++
	proxy.LastChecked = p.now()
	if _, gone := p.evicted[address]; gone {
		return
	}
	proxy.Working = true
	p.addWorkingLocked(address)
}

// ReportFailure records a failed round trip. Crossing the failure threshold
// evicts the proxy for the remainder of the process run.
func (p *Pool) ReportFailure(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.all[address]
	if !ok {
		return
	}

	proxy.FailCount++
	proxy.Working = false
	p.removeWorkingLocked(address)

	if proxy.FailCount >= p.opts.FailThreshold {
		p.evicted[address] = struct{}{}
		p.log.WarnWithFields("proxy evicted", map[string]interface{}{
			"proxy":      address,
			"fail_count": proxy.FailCount,
		})
		return
	}
	logger.LogProxyRotation(address, false)
}

// GetStats returns a snapshot of pool health
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Total:        len(p.all),
		Working:      len(p.working),
		Evicted:      len(p.evicted),
		LastRotation: p.lastRotation,
	}
}

// Snapshot returns a copy of every known proxy, sorted by address.
func (p *Pool) Snapshot() []Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies := make([]Proxy, 0, len(p.all))
	for _, proxy := range p.all {
		proxies = append(proxies, *proxy)
	}
	sort.Slice(proxies, func(i, j int) bool { return proxies[i].Address < proxies[j].Address })
	return proxies
}

// WorkingCount returns the current size of the working subset
func (p *Pool) WorkingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.working)
}

func (p *Pool) addWorkingLocked(address string) {
	for _, a := range p.working {
		if a == address {
			return
		}
	}
	p.working = append(p.working, address)
}

func (p *Pool) removeWorkingLocked(address string) {
	for i, a := range p.working {
		if a == address {
			p.working = append(p.working[:i], p.working[i+1:]...)
			return
		}
	}
}
