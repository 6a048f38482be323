package storeclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/storepulse/storepulse/exporter/internal/config"
)

const (
	// PageSize is the number of records requested per call.
	PageSize = 100

	// MaxPages is the hard ceiling of pages fetched per record type per call.
	MaxPages = 100

	apiPrefix  = "/wp-json/wc/v3/"
	statusPath = "system_status"
	userAgent  = "storepulse/1.0"

	// maxErrorBody bounds how much of an error response is read for the message.
	maxErrorBody = 4096
)

// RecordType names one paginated collection of the store API.
type RecordType string

// Record types fetched by the aggregator.
const (
	Orders    RecordType = "orders"
	Products  RecordType = "products"
	Customers RecordType = "customers"
)

// RecordPage is the ordered list of raw records returned by one API call.
type RecordPage struct {
	Type    RecordType
	Number  int
	Records []json.RawMessage
}

// Len returns the number of records on the page.
func (p RecordPage) Len() int { return len(p.Records) }

// FetchError reports a failed page retrieval. HTTPStatus is 0 when the
// request never produced a response.
type FetchError struct {
	RecordType RecordType
	HTTPStatus int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.RecordType)
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(": status %d", e.HTTPStatus)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client performs authenticated, paginated retrieval against one store.
// A Client is safe for concurrent use.
type Client struct {
	store  config.Store
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the store settings.
// Authentication is still injected around hc's transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		inner := hc.Transport
		if inner == nil {
			inner = http.DefaultTransport
		}
		c.http = &http.Client{
			Transport: &authRoundTripper{base: inner, store: c.store},
			Timeout:   hc.Timeout,
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client for store. It fails only when the store URL cannot be
// parsed; no request is made.
func New(store config.Store, opts ...Option) (*Client, error) {
	base, err := url.Parse(store.URL)
	if err != nil {
		return nil, fmt.Errorf("storeclient %q: parse url: %w", store.ID, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("storeclient %q: unsupported scheme %q", store.ID, base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("storeclient %q: url has no host", store.ID)
	}

	c := &Client{
		store:  store,
		base:   base,
		http:   buildHTTPClient(store),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("store", store.ID)
	return c, nil
}

// Store returns the descriptor the client was built from.
func (c *Client) Store() config.Store { return c.store }

// FetchPage retrieves one page of recordType. pageSize is capped at PageSize.
// Any transport, status or decode failure is returned as a *FetchError.
func (c *Client) FetchPage(ctx context.Context, recordType RecordType, page, pageSize int, filter url.Values) (RecordPage, error) {
	if pageSize <= 0 || pageSize > PageSize {
		pageSize = PageSize
	}
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	for k, vs := range filter {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))

	resp, err := c.get(ctx, string(recordType), q)
	if err != nil {
		return RecordPage{}, &FetchError{RecordType: recordType, Message: fmt.Sprintf("page %d", page), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RecordPage{}, &FetchError{
			RecordType: recordType,
			HTTPStatus: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return RecordPage{}, &FetchError{
			RecordType: recordType,
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("decode page %d", page),
			Err:        err,
		}
	}

	c.logger.Debug("storeclient: fetched page",
		"type", recordType, "page", page, "records", len(records))
	return RecordPage{Type: recordType, Number: page, Records: records}, nil
}

// FetchAll lazily walks recordType page by page with MaxPages as ceiling.
// See FetchPages.
func (c *Client) FetchAll(ctx context.Context, recordType RecordType, filter url.Values) iter.Seq2[RecordPage, error] {
	return c.FetchPages(ctx, recordType, filter, MaxPages)
}

// FetchPages lazily walks recordType starting at page 1. The sequence ends
// at the first empty page, after maxPages pages (with an advisory log), or
// after yielding a non-nil error. Each iteration starts a fresh walk.
func (c *Client) FetchPages(ctx context.Context, recordType RecordType, filter url.Values, maxPages int) iter.Seq2[RecordPage, error] {
	return func(yield func(RecordPage, error) bool) {
		for n := 1; ; n++ {
			if n > maxPages {
				c.logger.Warn("storeclient: page ceiling reached, result may be incomplete",
					"type", recordType, "max_pages", maxPages)
				return
			}
			page, err := c.FetchPage(ctx, recordType, n, PageSize, filter)
			if err != nil {
				yield(RecordPage{}, err)
				return
			}
			if page.Len() == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// Ping issues the lightweight status call and reports why it failed.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, statusPath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Probe reports whether the store answers the status call. It never fails;
// the cause of a false result is logged.
func (c *Client) Probe(ctx context.Context) bool {
	if err := c.Ping(ctx); err != nil {
		c.logger.Warn("storeclient: connection probe failed", "err", err)
		return false
	}
	return true
}

func (c *Client) get(ctx context.Context, resource string, q url.Values) (*http.Response, error) {
	u := c.base.JoinPath(apiPrefix, resource)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	return resp, nil
}

// errorMessage extracts the "message" field of an API error body, falling
// back to the raw (truncated) body text.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code != "" {
			return apiErr.Code + ": " + apiErr.Message
		}
		return apiErr.Message
	}
	return string(body)
}

// authRoundTripper injects the store credentials into every outgoing request.
type authRoundTripper struct {
	base  http.RoundTripper
	store config.Store
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	switch t.store.AuthMode {
	case config.AuthQuery:
		q := req.URL.Query()
		q.Set("consumer_key", t.store.ConsumerKey)
		q.Set("consumer_secret", t.store.ConsumerSecret)
		req.URL.RawQuery = q.Encode()
	default:
		req.SetBasicAuth(t.store.ConsumerKey, t.store.ConsumerSecret)
	}
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the store's auth, TLS and
// timeout settings.
func buildHTTPClient(store config.Store) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: store.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{base: transport, store: store},
		Timeout:   store.Timeout,
	}
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
