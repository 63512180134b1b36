package integration

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockServer is a scripted upstream used by the integration tests. Each path
// can carry a queue of status codes to serve before falling back to 200, and
// a JSON feed body. It also works as a plain HTTP proxy target: proxied
// requests arrive with an absolute URI and are answered the same way.
type MockServer struct {
	mu      sync.Mutex
	server  *httptest.Server
	scripts map[string][]int
	feeds   map[string][]byte
	hits    map[string]int
}

func NewMockServer() *MockServer {
	s := &MockServer{
		scripts: make(map[string][]int),
		feeds:   make(map[string][]byte),
		hits:    make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *MockServer) URL() string { return s.server.URL }

func (s *MockServer) Close() { s.server.Close() }

// Script queues status codes for a path; once drained the path serves 200.
func (s *MockServer) Script(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[path] = append(s.scripts[path], statuses...)
}

// SetFeed attaches a response body to a path.
func (s *MockServer) SetFeed(path string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[path] = body
}

// Hits returns how many requests a path has received.
func (s *MockServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.hits[path]++
	var status int
	if queue := s.scripts[path]; len(queue) > 0 {
		status = queue[0]
		s.scripts[path] = queue[1:]
	}
	body := s.feeds[path]
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	if body != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}
	w.Write([]byte("ok"))
}
