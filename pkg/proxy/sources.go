package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// Source fetches candidate proxies from one external provider. Sources are
// failure-isolated: a failing source contributes zero candidates and never
// aborts the other sources.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Candidate, error)
}

const sourceFetchTimeout = 30 * time.Second

// GeonodeSource fetches proxies from a geonode-style JSON list API
type GeonodeSource struct {
	BaseURL string
	Limit   int
	Client  *http.Client
}

// NewGeonodeSource creates a source against the public geonode proxy list
func NewGeonodeSource(client *http.Client) *GeonodeSource {
	return &GeonodeSource{
		BaseURL: "https://proxylist.geonode.com/api/proxy-list",
		Limit:   100,
		Client:  client,
	}
}

func (s *GeonodeSource) Name() string { return "geonode" }

// geonodeEntry mirrors the fields of the geonode list API we consume
type geonodeEntry struct {
	IP             string   `json:"ip"`
	Port           string   `json:"port"`
	Protocols      []string `json:"protocols"`
	Country        string   `json:"country"`
	AnonymityLevel string   `json:"anonymityLevel"`
}

func (s *GeonodeSource) Fetch(ctx context.Context) ([]Candidate, error) {
	url := fmt.Sprintf("%s?limit=%d&page=1&sort_by=lastChecked&sort_type=desc&protocols=http%%2Chttps",
		s.BaseURL, s.Limit)

	body, err := fetchBody(ctx, s.Client, url)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []geonodeEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode geonode response: %w", err)
	}

	candidates := make([]Candidate, 0, len(payload.Data))
	for _, entry := range payload.Data {
		protocol := "http"
		if len(entry.Protocols) > 0 {
			protocol = entry.Protocols[0]
		}
		address, scheme, err := normalizeAddress(entry.IP+":"+entry.Port, protocol)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Address:   address,
			Protocol:  scheme,
			Country:   entry.Country,
			Anonymity: entry.AnonymityLevel,
		})
	}
	return candidates, nil
}

// ipPortPattern matches bare ip:port pairs in free proxy list pages
var ipPortPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3}):(\d{2,5})`)

// PlainTextSource scrapes ip:port pairs out of a plain-text or HTML listing
type PlainTextSource struct {
	SourceName string
	URL        string
	Protocol   string
	Client     *http.Client
}

// NewFreeProxyListSource creates a source against free-proxy-list.net
func NewFreeProxyListSource(client *http.Client) *PlainTextSource {
	return &PlainTextSource{
		SourceName: "free-proxy-list",
		URL:        "https://free-proxy-list.net/",
		Protocol:   "http",
		Client:     client,
	}
}

func (s *PlainTextSource) Name() string { return s.SourceName }

func (s *PlainTextSource) Fetch(ctx context.Context) ([]Candidate, error) {
	body, err := fetchBody(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}

	matches := ipPortPattern.FindAllStringSubmatch(string(body), -1)
	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		port, err := strconv.Atoi(m[2])
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		address, scheme, err := normalizeAddress(m[0], s.Protocol)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{Address: address, Protocol: scheme})
	}
	return candidates, nil
}

// StaticSource serves a fixed, configuration-provided proxy list
type StaticSource struct {
	Addresses []string
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Fetch(ctx context.Context) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(s.Addresses))
	for _, raw := range s.Addresses {
		address, scheme, err := normalizeAddress(raw, "")
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{Address: address, Protocol: scheme})
	}
	return candidates, nil
}

// fetchBody issues a GET with the source timeout and returns the body for
// 2xx responses
func fetchBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, sourceFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
