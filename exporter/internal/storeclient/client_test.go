package storeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/woofake"
)

func newClient(t *testing.T, store config.Store) *Client {
	t.Helper()
	c, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func records(n, offset int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"id": offset + i + 1}
	}
	return out
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://shop.example.com", "https://", "://bad"} {
		if _, err := New(config.Store{ID: "s", URL: u}); err == nil {
			t.Errorf("New(%q): expected error", u)
		}
	}
}

func TestFetchPage_DecodesRecordsAndSendsPaging(t *testing.T) {
	srv := woofake.New(t)
	srv.SetRecords("products", records(3, 0)...)
	c := newClient(t, srv.Store("s1"))

	page, err := c.FetchPage(context.Background(), Products, 1, 100, url.Values{"status": {"publish"}})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Len() != 3 || page.Number != 1 || page.Type != Products {
		t.Fatalf("page: got %+v", page)
	}

	q := srv.Queries("products")[0]
	if q.Get("page") != "1" || q.Get("per_page") != "100" || q.Get("status") != "publish" {
		t.Errorf("query: got %v", q)
	}
}

func TestFetchPage_CapsPageSize(t *testing.T) {
	srv := woofake.New(t)
	c := newClient(t, srv.Store("s1"))

	if _, err := c.FetchPage(context.Background(), Orders, 1, 500, nil); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if got := srv.Queries("orders")[0].Get("per_page"); got != "100" {
		t.Errorf("per_page: got %s, want 100", got)
	}
}

func TestFetchPage_QueryAuth(t *testing.T) {
	srv := woofake.New(t)
	srv.SetRecords("customers", records(1, 0)...)
	store := srv.Store("s1")
	store.AuthMode = config.AuthQuery
	c := newClient(t, store)

	page, err := c.FetchPage(context.Background(), Customers, 1, 100, nil)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Len() != 1 {
		t.Errorf("records: got %d, want 1", page.Len())
	}
	if got := srv.Queries("customers")[0].Get("consumer_key"); got != woofake.ConsumerKey {
		t.Errorf("consumer_key query param: got %q", got)
	}
}

func TestFetchPage_Unauthorized(t *testing.T) {
	srv := woofake.New(t)
	store := srv.Store("s1")
	store.ConsumerSecret = "wrong"
	c := newClient(t, store)

	_, err := c.FetchPage(context.Background(), Orders, 1, 100, nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("HTTPStatus: got %d, want 401", fe.HTTPStatus)
	}
	if fe.RecordType != Orders {
		t.Errorf("RecordType: got %q", fe.RecordType)
	}
	if fe.Message == "" {
		t.Error("Message should carry the API error text")
	}
}

func TestFetchPage_ConnectFailure(t *testing.T) {
	c := newClient(t, config.Store{ID: "down", URL: "http://127.0.0.1:1", Timeout: 0})

	_, err := c.FetchPage(context.Background(), Orders, 1, 100, nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.HTTPStatus != 0 {
		t.Errorf("HTTPStatus: got %d, want 0", fe.HTTPStatus)
	}
}

func TestFetchPage_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := newClient(t, config.Store{ID: "s", URL: srv.URL})
	if _, err := c.FetchPage(context.Background(), Orders, 1, 100, nil); !IsFetchError(err) {
		t.Fatalf("expected FetchError for non-array body, got %v", err)
	}
}

func TestFetchAll_StopsAtFirstEmptyPage(t *testing.T) {
	srv := woofake.New(t)
	srv.SetRecords("orders", records(250, 0)...)
	c := newClient(t, srv.Store("s1"))

	var ids []float64
	pages := 0
	for page, err := range c.FetchAll(context.Background(), Orders, nil) {
		if err != nil {
			t.Fatalf("FetchAll error = %v", err)
		}
		pages++
		recs, err := Decode[map[string]float64](page)
		if err != nil {
			t.Fatalf("Decode error = %v", err)
		}
		for _, r := range recs {
			ids = append(ids, r["id"])
		}
	}

	if pages != 3 {
		t.Errorf("pages yielded: got %d, want 3", pages)
	}
	// Pages 1-3 carry data, page 4 is empty and ends the walk.
	if got := srv.Requests("orders"); got != 4 {
		t.Errorf("requests: got %d, want 4", got)
	}
	if len(ids) != 250 {
		t.Fatalf("records: got %d, want 250", len(ids))
	}
	for i, id := range ids {
		if id != float64(i+1) {
			t.Fatalf("record %d: got id %v, want %d (order not preserved)", i, id, i+1)
		}
	}
}

func TestFetchAll_EmptyFirstPage(t *testing.T) {
	srv := woofake.New(t)
	c := newClient(t, srv.Store("s1"))

	for _, err := range c.FetchAll(context.Background(), Products, nil) {
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		t.Fatal("no page should be yielded for an empty collection")
	}
	if got := srv.Requests("products"); got != 1 {
		t.Errorf("requests: got %d, want 1", got)
	}
}

func TestFetchAll_PageCeiling(t *testing.T) {
	srv := woofake.New(t)
	srv.Endless("orders")
	c := newClient(t, srv.Store("s1"))

	pages := 0
	for _, err := range c.FetchAll(context.Background(), Orders, nil) {
		if err != nil {
			t.Fatalf("ceiling must not surface as an error: %v", err)
		}
		pages++
	}
	if pages != MaxPages {
		t.Errorf("pages: got %d, want %d", pages, MaxPages)
	}
	if got := srv.Requests("orders"); got != MaxPages {
		t.Errorf("requests: got %d, want %d", got, MaxPages)
	}
}

func TestFetchAll_ErrorAbortsWalk(t *testing.T) {
	srv := woofake.New(t)
	srv.SetRecords("orders", records(300, 0)...)
	srv.FailPage("orders", 2, http.StatusBadGateway)
	c := newClient(t, srv.Store("s1"))

	var pages int
	var lastErr error
	for _, err := range c.FetchAll(context.Background(), Orders, nil) {
		if err != nil {
			lastErr = err
			continue
		}
		pages++
	}

	if pages != 1 {
		t.Errorf("pages before failure: got %d, want 1", pages)
	}
	var fe *FetchError
	if !errors.As(lastErr, &fe) || fe.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("expected 502 FetchError, got %v", lastErr)
	}
	if got := srv.Requests("orders"); got != 2 {
		t.Errorf("requests: got %d, want 2 (no page after the failure)", got)
	}
}

func TestFetchAll_RestartsOnEachRange(t *testing.T) {
	srv := woofake.New(t)
	srv.SetRecords("customers", records(5, 0)...)
	c := newClient(t, srv.Store("s1"))

	seq := c.FetchAll(context.Background(), Customers, nil)
	for range seq {
	}
	for range seq {
	}
	qs := srv.Queries("customers")
	if len(qs) != 4 {
		t.Fatalf("requests: got %d, want 4", len(qs))
	}
	if qs[2].Get("page") != "1" {
		t.Errorf("second walk should start at page 1, got %s", qs[2].Get("page"))
	}
}

func TestFetchPages_EarlyBreak(t *testing.T) {
	srv := woofake.New(t)
	srv.Endless("customers")
	c := newClient(t, srv.Store("s1"))

	for range c.FetchPages(context.Background(), Customers, nil, 10) {
		break
	}
	if got := srv.Requests("customers"); got != 1 {
		t.Errorf("requests after break: got %d, want 1", got)
	}
}

func TestProbe(t *testing.T) {
	srv := woofake.New(t)
	c := newClient(t, srv.Store("s1"))

	if !c.Probe(context.Background()) {
		t.Fatal("Probe() = false, want true")
	}

	srv.FailProbe(http.StatusServiceUnavailable)
	if c.Probe(context.Background()) {
		t.Fatal("Probe() = true for 503, want false")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping() should report the failing status")
	}
}

func TestProbe_Unreachable(t *testing.T) {
	c := newClient(t, config.Store{ID: "down", URL: "http://127.0.0.1:1"})
	if c.Probe(context.Background()) {
		t.Fatal("Probe() = true for unreachable store")
	}
}
