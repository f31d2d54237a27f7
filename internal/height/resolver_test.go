package height

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestResolver(t *testing.T, url, apiKey string) *Resolver {
	t.Helper()
	resolver, err := NewResolver(Config{
		BaseURL:    url,
		APIKey:     apiKey,
		Interval:   time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func TestResolveMemoizes(t *testing.T) {
	var calls atomic.Int64
	var mu sync.Mutex
	seen := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("module") != "block" || q.Get("action") != "getblocknobytime" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("apikey") != "KEY" {
			t.Errorf("missing api key")
		}
		mu.Lock()
		seen[q.Get("closest")] = q.Get("timestamp")
		mu.Unlock()

		ts, _ := strconv.ParseInt(q.Get("timestamp"), 10, 64)
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":"%d"}`, ts/12)
	}))
	defer server.Close()

	resolver := newTestResolver(t, server.URL, "KEY")
	day := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

	first, err := resolver.Resolve(context.Background(), day)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := resolver.Resolve(context.Background(), day)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first != second {
		t.Fatalf("memoized result mismatch: %+v != %+v", first, second)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly 2 http calls, got %d", calls.Load())
	}

	midnight := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()
	if seen["after"] != strconv.FormatInt(midnight, 10) {
		t.Fatalf("start query timestamp = %s", seen["after"])
	}
	if seen["before"] != strconv.FormatInt(midnight+86399, 10) {
		t.Fatalf("end query timestamp = %s", seen["before"])
	}
	if first.Start != uint64(midnight/12) || first.End != uint64((midnight+86399)/12) {
		t.Fatalf("unexpected range %+v", first)
	}
}

func TestResolveRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("apikey") != "" {
			t.Errorf("unexpected api key")
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":"100"}`)
	}))
	defer server.Close()

	resolver := newTestResolver(t, server.URL, "")
	got, err := resolver.Resolve(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != (Range{Start: 100, End: 100}) {
		t.Fatalf("unexpected range %+v", got)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestResolveStatusFailureIsFatal(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Error! Invalid timestamp"}`)
	}))
	defer server.Close()

	resolver := newTestResolver(t, server.URL, "KEY")
	_, err := resolver.Resolve(context.Background(), time.Now())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != "0" {
		t.Fatalf("expected api error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestResolveNon200IsFatalAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	resolver := newTestResolver(t, server.URL, "KEY")
	_, err := resolver.BlockByTime(context.Background(), 1_700_000_000, "before")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestResolveUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	var after atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("closest") == "after" {
			ts, _ := strconv.ParseInt(r.URL.Query().Get("timestamp"), 10, 64)
			after.Store(ts)
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":"1"}`)
	}))
	defer server.Close()

	resolver, err := NewResolver(Config{BaseURL: server.URL, Location: loc, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, loc)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC).Unix()
	if after.Load() != want {
		t.Fatalf("expected local midnight %d, got %d", want, after.Load())
	}
}
