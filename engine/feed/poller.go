package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/kelleherhvac/partfinder/engine/parts"
)

// Fetcher pulls changed parts from a supplier feed.
type Fetcher interface {
	Supplier() string
	FetchSince(ctx context.Context, since time.Time) ([]parts.Part, error)
}

// PublishFunc hands one fetched part to the ingest bus.
type PublishFunc func(ctx context.Context, p parts.Part) error

// Poller periodically pulls a supplier feed and publishes every changed
// part. Publish failures skip the part; the next cycle retries it because
// lastSync only advances after a fully published cycle.
type Poller struct {
	fetcher  Fetcher
	publish  PublishFunc
	interval time.Duration
	logger   *slog.Logger
	lastSync time.Time
}

// NewPoller creates a poller for one supplier feed.
func NewPoller(fetcher Fetcher, publish PublishFunc, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: fetcher, publish: publish, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one fetch-and-publish pass. Exposed to tests via RunOnce.
func (p *Poller) cycle(ctx context.Context) {
	started := time.Now()
	fetched, err := p.fetcher.FetchSince(ctx, p.lastSync)
	if err != nil {
		p.logger.Error("feed fetch failed", "supplier", p.fetcher.Supplier(), "error", err)
		return
	}

	published := 0
	failed := 0
	for _, part := range fetched {
		if err := p.publish(ctx, part); err != nil {
			p.logger.Error("feed publish failed", "supplier", p.fetcher.Supplier(), "part_number", part.PartNumber, "error", err)
			failed++
			continue
		}
		published++
	}

	if failed == 0 {
		p.lastSync = started
	}
	p.logger.Info("feed cycle done",
		"supplier", p.fetcher.Supplier(),
		"fetched", len(fetched),
		"published", published,
		"failed", failed,
	)
}

// RunOnce performs a single fetch-and-publish cycle.
func (p *Poller) RunOnce(ctx context.Context) {
	p.cycle(ctx)
}
