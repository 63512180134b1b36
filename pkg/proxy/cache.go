package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// cacheFileVersion guards the on-disk format
const cacheFileVersion = 1

// cacheFile is the persisted shape of the proxy set
type cacheFile struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Proxies   []Proxy   `json:"proxies"`
}

// Save serializes the full proxy set, health counters included, to the cache
// file. The write is atomic: a temp file is written and renamed into place.
func (p *Pool) Save() error {
	if p.opts.CacheFile == "" {
		return nil
	}

	p.mu.Lock()
	snapshot := cacheFile{
		Version:   cacheFileVersion,
		Timestamp: p.now(),
		Proxies:   make([]Proxy, 0, len(p.all)),
	}
	for _, proxy := range p.all {
		snapshot.Proxies = append(snapshot.Proxies, *proxy)
	}
	p.mu.Unlock()

	dir := filepath.Dir(p.opts.CacheFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempPath := p.opts.CacheFile + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&snapshot); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode proxy cache: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary cache file: %w", err)
	}

	if err := os.Rename(tempPath, p.opts.CacheFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}

	p.log.DebugWithFields("proxy cache saved", map[string]interface{}{
		"file":  p.opts.CacheFile,
		"count": len(snapshot.Proxies),
	})
	return nil
}

// Load seeds the pool from the cache file. Entries marked working join the
// working subset directly; the rest become candidates for re-validation. A
// cache older than the staleness bound is ignored.
func (p *Pool) Load() error {
	if p.opts.CacheFile == "" {
		return nil
	}

	data, err := os.ReadFile(p.opts.CacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no cache yet
		}
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var snapshot cacheFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode proxy cache: %w", err)
	}

	if age := p.now().Sub(snapshot.Timestamp); age > p.opts.CacheMaxAge {
		p.log.InfoWithFields("proxy cache stale, ignoring", map[string]interface{}{
			"file": p.opts.CacheFile,
			"age":  age.String(),
		})
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	loaded := 0
	for i := range snapshot.Proxies {
		proxy := snapshot.Proxies[i]
		if _, exists := p.all[proxy.Address]; exists {
			continue
		}
		p.all[proxy.Address] = &proxy
		if proxy.FailCount >= p.opts.FailThreshold {
			p.evicted[proxy.Address] = struct{}{}
			continue
		}
		if proxy.Working {
			p.addWorkingLocked(proxy.Address)
		}
		loaded++
	}

	p.log.InfoWithFields("proxy cache loaded", map[string]interface{}{
		"file":  p.opts.CacheFile,
		"count": loaded,
	})
	return nil
}
