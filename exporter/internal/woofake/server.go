// Package woofake is an in-process fake of the store REST API for tests.
//
// It serves /wp-json/wc/v3/{orders,products,customers} with page/per_page
// pagination over records set by the test, /wp-json/wc/v3/system_status for
// probes, checks credentials, and can be told to fail specific resources or
// pages, or to never run out of pages.
package woofake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/config"
)

// Credentials accepted by every fake server.
const (
	ConsumerKey    = "ck_test"
	ConsumerSecret = "cs_test"
)

const apiPrefix = "/wp-json/wc/v3/"

// Server is a fake store back-end.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	records   map[string][]any
	failAll   map[string]int
	failPage  map[string]map[int]int
	endless   map[string]bool
	probeCode int
	requests  map[string]int
	queries   map[string][]url.Values
}

// New starts a fake server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		records:   make(map[string][]any),
		failAll:   make(map[string]int),
		failPage:  make(map[string]map[int]int),
		endless:   make(map[string]bool),
		probeCode: http.StatusOK,
		requests:  make(map[string]int),
		queries:   make(map[string][]url.Values),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Store returns a store descriptor pointing at the fake server.
func (s *Server) Store(id string) config.Store {
	return config.Store{
		ID:             id,
		Name:           "Store " + id,
		URL:            s.URL,
		ConsumerKey:    ConsumerKey,
		ConsumerSecret: ConsumerSecret,
		Currency:       "USD",
		Enabled:        true,
		Timeout:        5 * time.Second,
		MaxRetries:     0,
		ScrapeInterval: time.Minute,
		AuthMode:       config.AuthBasic,
	}
}

// SetRecords replaces the records served for resource ("orders", ...).
// Records are JSON-encoded as given.
func (s *Server) SetRecords(resource string, records ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[resource] = records
}

// Fail makes every request for resource answer with status.
// A zero status clears the failure.
func (s *Server) Fail(resource string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failAll, resource)
		return
	}
	s.failAll[resource] = status
}

// FailPage makes page n of resource answer with status.
func (s *Server) FailPage(resource string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPage[resource] == nil {
		s.failPage[resource] = make(map[int]int)
	}
	s.failPage[resource][n] = status
}

// Endless makes resource return a full page for every page number.
func (s *Server) Endless(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endless[resource] = true
}

// FailProbe sets the status answered by system_status.
func (s *Server) FailProbe(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeCode = status
}

// Requests returns how many requests resource has received.
func (s *Server) Requests(resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[resource]
}

// Queries returns the query strings of every request for resource, in order.
func (s *Server) Queries(resource string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.queries[resource]...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, apiPrefix) {
		writeError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
		return
	}
	if !authorized(r) {
		writeError(w, http.StatusUnauthorized, "woocommerce_rest_cannot_view", "Sorry, you cannot list resources.")
		return
	}

	resource := strings.TrimPrefix(r.URL.Path, apiPrefix)
	q := r.URL.Query()

	s.mu.Lock()
	s.requests[resource]++
	s.queries[resource] = append(s.queries[resource], q)
	probeCode := s.probeCode
	failAll := s.failAll[resource]
	endless := s.endless[resource]
	records := s.records[resource]
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	failPage := s.failPage[resource][page]
	s.mu.Unlock()

	if resource == "system_status" {
		if probeCode != http.StatusOK {
			writeError(w, probeCode, "status_unavailable", "status unavailable")
			return
		}
		writeJSON(w, map[string]any{"environment": map[string]any{"version": "9.0.0"}})
		return
	}

	switch {
	case failAll != 0:
		writeError(w, failAll, "internal_error", "resource failure")
		return
	case failPage != 0:
		writeError(w, failPage, "internal_error", "page failure")
		return
	}

	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = 10
	}

	if endless {
		out := make([]any, perPage)
		for i := range out {
			out[i] = map[string]any{"id": (page-1)*perPage + i + 1}
		}
		writeJSON(w, out)
		return
	}

	start := (page - 1) * perPage
	if start > len(records) {
		start = len(records)
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}
	out := make([]any, 0, end-start)
	out = append(out, records[start:end]...)
	w.Header().Set("X-WP-Total", strconv.Itoa(len(records)))
	writeJSON(w, out)
}

func authorized(r *http.Request) bool {
	if u, p, ok := r.BasicAuth(); ok {
		return u == ConsumerKey && p == ConsumerSecret
	}
	q := r.URL.Query()
	return q.Get("consumer_key") == ConsumerKey && q.Get("consumer_secret") == ConsumerSecret
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"code":    code,
		"message": msg,
		"data":    map[string]int{"status": status},
	})
}
