// Package feed pulls supplier catalog feeds over HTTP and publishes new
// and updated parts onto the ingest bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kelleherhvac/partfinder/engine/parts"
	"github.com/kelleherhvac/partfinder/pkg/resilience"
	"golang.org/x/time/rate"
)

// page is one page of a supplier feed response.
type page struct {
	Parts   []parts.Part `json:"parts"`
	HasMore bool         `json:"has_more"`
}

// ClientOpts configures a supplier feed client.
type ClientOpts struct {
	// RequestsPerSecond caps outbound request rate. Supplier APIs are
	// shared and slow; keep this low.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	PageSize          int
}

// DefaultClientOpts returns conservative defaults.
func DefaultClientOpts() ClientOpts {
	return ClientOpts{
		RequestsPerSecond: 2,
		Burst:             1,
		Timeout:           15 * time.Second,
		PageSize:          200,
	}
}

// Client fetches parts from one supplier's catalog feed.
type Client struct {
	baseURL  string
	supplier string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	pageSize int
}

// NewClient creates a feed client for the supplier API at baseURL.
func NewClient(baseURL, supplier string, opts ClientOpts) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultClientOpts().RequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultClientOpts().Timeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultClientOpts().PageSize
	}
	return &Client{
		baseURL:  baseURL,
		supplier: supplier,
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerOpts),
		pageSize: opts.PageSize,
	}
}

// Supplier returns the supplier name this client is bound to.
func (c *Client) Supplier() string { return c.supplier }

// FetchSince returns all parts changed since the given time, walking the
// feed page by page. Rate limiting and the circuit breaker apply per page.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]parts.Part, error) {
	var all []parts.Part
	for pageNum := 0; ; pageNum++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("feed: rate wait: %w", err)
		}

		var pg page
		err := c.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			pg, err = c.fetchPage(ctx, since, pageNum)
			return err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, pg.Parts...)
		if !pg.HasMore {
			return all, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, since time.Time, pageNum int) (page, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("page_size", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parts?"+q.Encode(), nil)
	if err != nil {
		return page{}, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("feed: %s page %d: %w", c.supplier, pageNum, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return page{}, fmt.Errorf("feed: %s page %d: status %d: %s", c.supplier, pageNum, resp.StatusCode, body)
	}

	var pg page
	if err := json.NewDecoder(resp.Body).Decode(&pg); err != nil {
		return page{}, fmt.Errorf("feed: %s page %d: decode: %w", c.supplier, pageNum, err)
	}
	return pg, nil
}
