package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/pkg/resilience"
)

func testOpts() ClientOpts {
	o := DefaultClientOpts()
	o.RequestsPerSecond = 1000
	o.Burst = 100
	return o
}

func TestFetchSinceSinglePage(t *testing.T) {
	var gotSince, gotPageSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotPageSize = r.URL.Query().Get("page_size")
		json.NewEncoder(w).Encode(page{Parts: []parts.Part{
			{PartNumber: "HC41AE117", Description: "Carrier blower motor"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme-supply", testOpts())
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	got, err := c.FetchSince(context.Background(), since)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PartNumber != "HC41AE117" {
		t.Fatalf("got %+v", got)
	}
	if gotSince != "2026-08-01T00:00:00Z" {
		t.Fatalf("since=%q", gotSince)
	}
	if gotPageSize != "200" {
		t.Fatalf("page_size=%q", gotPageSize)
	}
}

func TestFetchSinceWalksPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pg := page{
			Parts:   []parts.Part{{PartNumber: "P" + strconv.Itoa(pageNum)}},
			HasMore: pageNum < 2,
		}
		json.NewEncoder(w).Encode(pg)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme-supply", testOpts())
	got, err := c.FetchSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].PartNumber != "P2" {
		t.Fatalf("got %+v", got)
	}
}

func TestFetchSinceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "supplier down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme-supply", testOpts())
	if _, err := c.FetchSince(context.Background(), time.Time{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFetchSinceBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "supplier down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme-supply", testOpts())
	for i := 0; i < 5; i++ {
		c.FetchSince(context.Background(), time.Time{})
	}
	_, err := c.FetchSince(context.Background(), time.Time{})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err=%v", err)
	}
}

// --- Poller ---

type fakeFetcher struct {
	parts []parts.Part
	err   error
	calls int
}

func (f *fakeFetcher) Supplier() string { return "acme-supply" }

func (f *fakeFetcher) FetchSince(_ context.Context, _ time.Time) ([]parts.Part, error) {
	f.calls++
	return f.parts, f.err
}

func TestPollerPublishesFetchedParts(t *testing.T) {
	fetcher := &fakeFetcher{parts: []parts.Part{
		{PartNumber: "A"}, {PartNumber: "B"},
	}}
	var published []string
	p := NewPoller(fetcher, func(_ context.Context, part parts.Part) error {
		published = append(published, part.PartNumber)
		return nil
	}, time.Minute, nil)

	p.RunOnce(context.Background())
	if len(published) != 2 || published[1] != "B" {
		t.Fatalf("published=%v", published)
	}
	if p.lastSync.IsZero() {
		t.Fatal("lastSync should advance after a clean cycle")
	}
}

func TestPollerKeepsLastSyncOnPublishFailure(t *testing.T) {
	fetcher := &fakeFetcher{parts: []parts.Part{{PartNumber: "A"}}}
	p := NewPoller(fetcher, func(context.Context, parts.Part) error {
		return errors.New("bus down")
	}, time.Minute, nil)

	p.RunOnce(context.Background())
	if !p.lastSync.IsZero() {
		t.Fatal("lastSync must not advance when publishes fail")
	}
}

func TestPollerFetchErrorDoesNotPublish(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("feed down")}
	called := false
	p := NewPoller(fetcher, func(context.Context, parts.Part) error {
		called = true
		return nil
	}, time.Minute, nil)

	p.RunOnce(context.Background())
	if called {
		t.Fatal("publish must not run on fetch error")
	}
}
