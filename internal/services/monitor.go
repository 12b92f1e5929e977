package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luckfunc/floorbot/internal/models"
)

// QuoteFetcher fetches a collection's current quote.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, collection string) (*models.PriceQuote, error)
}

// Notifier delivers alert text to a subscriber.
type Notifier interface {
	Send(ctx context.Context, subscriber, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, subscriber, text string) error

func (f NotifierFunc) Send(ctx context.Context, subscriber, text string) error {
	return f(ctx, subscriber, text)
}

const DefaultMonitorInterval = 5 * time.Minute

type MonitorOptions struct {
	Interval time.Duration
	Workers  int
	Clock    Clock
}

// Monitor polls every tracked pair on a fixed interval and alerts
// subscribers whose threshold was crossed.
type Monitor struct {
	tracker  *Tracker
	fetcher  QuoteFetcher
	notifier Notifier
	interval time.Duration
	workers  int
	clock    Clock
	log      *slog.Logger
}

// TickStats summarizes one pass over the tracked pairs.
type TickStats struct {
	Pairs   int
	Fetched int
	Failed  int
	Skipped int
	Alerts  int
}

type pair struct {
	subscriber string
	collection string
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSkipped
	outcomeFetched
	outcomeAlerted
)

func NewMonitor(tracker *Tracker, fetcher QuoteFetcher, notifier Notifier, opts MonitorOptions, log *slog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultMonitorInterval
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		tracker:  tracker,
		fetcher:  fetcher,
		notifier: notifier,
		interval: opts.Interval,
		workers:  opts.Workers,
		clock:    opts.Clock,
		log:      log,
	}
}

// Run ticks until ctx is done. The next tick is scheduled only after the
// current one returns, so ticks never overlap.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("price monitor started", "interval", m.interval, "workers", m.workers)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("price monitor stopped")
			return
		case <-m.clock.After(m.interval):
			m.Tick(ctx)
		}
	}
}

// Tick checks every tracked pair once. After ctx is cancelled no new pair
// is started; fetches already under way complete.
func (m *Monitor) Tick(ctx context.Context) TickStats {
	log := m.log.With("run_id", uuid.NewString())
	started := m.clock.Now()

	pairs := snapshotPairs(m.tracker.GetAllTracked())
	stats := TickStats{Pairs: len(pairs)}
	if len(pairs) == 0 {
		log.Debug("no tracked collections")
		return stats
	}

	work := context.WithoutCancel(ctx)
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, m.workers)
	)
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeFailed:
			stats.Failed++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeFetched:
			stats.Fetched++
		case outcomeAlerted:
			stats.Fetched++
			stats.Alerts++
		}
	}

	for i, p := range pairs {
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			log.Info("tick interrupted", "remaining", len(pairs)-i)
			break
		}
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			defer func() { <-sem }()
			record(m.checkPair(work, log, p))
		}(p)
	}
	wg.Wait()

	log.Info("tick finished",
		"pairs", stats.Pairs,
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"alerts", stats.Alerts,
		"took", m.clock.Now().Sub(started))
	return stats
}

func (m *Monitor) checkPair(ctx context.Context, log *slog.Logger, p pair) outcome {
	log = log.With("subscriber", p.subscriber, "collection", p.collection)

	quote, err := m.fetcher.FetchQuote(ctx, p.collection)
	if err != nil {
		log.Warn("failed to check price", "kind", FailureKindOf(err).String(), "error", err)
		return outcomeFailed
	}
	if quote == nil || !quote.FloorPrice.Valid {
		log.Debug("no floor price reported")
		return outcomeSkipped
	}
	newPrice := quote.FloorPrice.Decimal

	oldPrice, notify, err := m.tracker.ObservePrice(ctx, p.subscriber, p.collection, newPrice)
	if err != nil {
		log.Error("price updated in memory only", "error", err)
	}
	if !notify {
		return outcomeFetched
	}

	alert := models.PriceAlert{
		Subscriber: p.subscriber,
		Collection: p.collection,
		OldPrice:   oldPrice.Decimal,
		NewPrice:   newPrice,
		ChangePct:  PercentChange(oldPrice.Decimal, newPrice),
	}
	if err := m.notifier.Send(ctx, p.subscriber, FormatAlert(alert)); err != nil {
		log.Error("failed to deliver alert", "error", err)
	} else {
		log.Info("price alert sent", "old", alert.OldPrice.String(), "new", alert.NewPrice.String(), "change", alert.ChangePct.StringFixed(2))
	}
	return outcomeAlerted
}

func snapshotPairs(state models.TrackedState) []pair {
	subscribers := make([]string, 0, len(state))
	for subscriber := range state {
		subscribers = append(subscribers, subscriber)
	}
	sort.Strings(subscribers)

	var pairs []pair
	for _, subscriber := range subscribers {
		for _, collection := range sortedCollections(state[subscriber]) {
			pairs = append(pairs, pair{subscriber: subscriber, collection: collection})
		}
	}
	return pairs
}
