// Package useragent supplies rotating browser identities for outbound
// requests, scoped per destination key. Rotation cadence is internal to the
// rotator: an identity is replaced after a configured number of requests or
// once its time-to-live lapses, whichever comes first.
package useragent

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// desktopAgents serve destinations without a dedicated pool
var desktopAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var mobileAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPad; CPU OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

// platformAgents maps destination keys to identity pools that look plausible
// for that platform's typical audience.
var platformAgents = map[string][]string{
	"twitter":   desktopAgents,
	"facebook":  append(append([]string{}, desktopAgents[:3]...), mobileAgents[0]),
	"linkedin":  desktopAgents,
	"instagram": append(append([]string{}, mobileAgents...), desktopAgents[:2]...),
	"tiktok":    append(append([]string{}, mobileAgents...), desktopAgents[0]),
}

const currentIdentityCacheSize = 64

// Rotator hands out a user-agent string per destination key, replacing it
// after rotationRequests uses or once the TTL expires.
type Rotator struct {
	mu               sync.Mutex
	pools            map[string][]string
	fallback         []string
	current          *expirable.LRU[string, string]
	counts           map[string]int
	rotationRequests int
	rng              *rand.Rand
}

// NewRotator creates a Rotator. rotationRequests bounds how many requests an
// identity serves before replacement; rotationInterval bounds how long.
func NewRotator(rotationRequests int, rotationInterval time.Duration) *Rotator {
	if rotationRequests <= 0 {
		rotationRequests = 100
	}
	if rotationInterval <= 0 {
		rotationInterval = 10 * time.Minute
	}

	pools := make(map[string][]string, len(platformAgents))
	for key, agents := range platformAgents {
		pools[key] = agents
	}

	return &Rotator{
		pools:            pools,
		fallback:         desktopAgents,
		current:          expirable.NewLRU[string, string](currentIdentityCacheSize, nil, rotationInterval),
		counts:           make(map[string]int),
		rotationRequests: rotationRequests,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPool installs a custom identity pool for a destination key
func (r *Rotator) SetPool(key string, agents []string) {
	if len(agents) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key = strings.ToLower(key)
	r.pools[key] = agents
	r.current.Remove(key)
	r.counts[key] = 0
}

// Identity returns the user-agent to attach for one request against the
// destination key. Expiry of the cached entry (TTL) or the per-key request
// count triggers selection of a fresh identity.
func (r *Rotator) Identity(key string) string {
	key = strings.ToLower(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[key]++
	if r.counts[key] > r.rotationRequests {
		r.current.Remove(key)
		r.counts[key] = 1
	}

	if agent, ok := r.current.Get(key); ok {
		return agent
	}

	agent := r.pickLocked(key)
	r.current.Add(key, agent)
	return agent
}

func (r *Rotator) pickLocked(key string) string {
	pool, ok := r.pools[key]
	if !ok || len(pool) == 0 {
		pool = r.fallback
	}
	return pool[r.rng.Intn(len(pool))]
}
