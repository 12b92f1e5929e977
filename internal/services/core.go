package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/luckfunc/floorbot/internal/models"
)

// Core is what the chat layer calls into.
type Core struct {
	tracker *Tracker
	fetcher QuoteFetcher
	log     *slog.Logger
}

func NewCore(tracker *Tracker, fetcher QuoteFetcher, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	return &Core{tracker: tracker, fetcher: fetcher, log: log}
}

// Track starts watching collection for subscriber. A persistence failure
// is returned wrapped in ErrPersistence; the collection is tracked anyway.
func (c *Core) Track(ctx context.Context, subscriber, collection string, threshold decimal.NullDecimal) error {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return ErrEmptyCollection
	}
	if threshold.Valid && !threshold.Decimal.IsPositive() {
		return ErrInvalidThreshold
	}
	if err := c.tracker.AddCollection(ctx, subscriber, collection, threshold); err != nil {
		return err
	}
	c.log.Info("collection tracked", "subscriber", subscriber, "collection", collection)
	return nil
}

func (c *Core) Untrack(ctx context.Context, subscriber, collection string) (bool, error) {
	removed, err := c.tracker.RemoveCollection(ctx, subscriber, strings.TrimSpace(collection))
	if removed {
		c.log.Info("collection untracked", "subscriber", subscriber, "collection", collection)
	}
	return removed, err
}

func (c *Core) ListTracked(subscriber string) map[string]models.WatchRecord {
	return c.tracker.GetTracked(subscriber)
}

// FetchOnce fetches and formats a quote without touching tracked state.
func (c *Core) FetchOnce(ctx context.Context, collection string) string {
	quote, err := c.fetcher.FetchQuote(ctx, strings.TrimSpace(collection))
	if err != nil {
		c.log.Warn("manual fetch failed", "collection", collection, "error", err)
		var fe *FetchError
		if errors.As(err, &fe) && fe.Status == http.StatusNotFound {
			return FormatQuote(nil)
		}
		return FetchErrorText
	}
	return FormatQuote(quote)
}
