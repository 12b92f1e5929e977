package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/luckfunc/floorbot/internal/models"
)

const (
	DefaultOpenSeaURL = "https://api.opensea.io/v2"
	apiKeyHeader      = "X-API-KEY"
	errorBodyLimit    = 512
)

type OpenSeaOptions struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Spacing  time.Duration
	Cooldown time.Duration
	Clock    Clock
}

// OpenSeaClient fetches collection stats. One instance is shared by the
// monitor and the command layer so both draw from the same request budget.
type OpenSeaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pacer      *Pacer
	cooldown   time.Duration
	log        *slog.Logger
}

func NewOpenSeaClient(opts OpenSeaOptions, log *slog.Logger) *OpenSeaClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenSeaURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Spacing <= 0 {
		opts.Spacing = time.Second
	}
	if opts.Cooldown <= opts.Spacing {
		opts.Cooldown = 5 * opts.Spacing
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenSeaClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		pacer:      NewPacer(opts.Clock, opts.Spacing),
		cooldown:   opts.Cooldown,
		log:        log,
	}
}

// FetchQuote returns the collection's current floor price. Failures are
// always *FetchError.
func (c *OpenSeaClient) FetchQuote(ctx context.Context, collection string) (*models.PriceQuote, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: classifyTransport(err), Collection: collection, Err: err}
	}

	stats, err := c.getCollectionStats(ctx, collection)
	if err != nil {
		return nil, err
	}

	return &models.PriceQuote{
		Collection: collection,
		FloorPrice: stats.Total.FloorPrice,
		Currency:   models.Currency,
		Volume24h:  stats.Total.OneDayVolume,
		Change24h:  stats.Total.OneDayChange,
	}, nil
}

func (c *OpenSeaClient) getCollectionStats(ctx context.Context, collection string) (*models.CollectionStats, error) {
	endpoint := fmt.Sprintf("%s/collections/%s/stats", c.baseURL, url.PathEscape(collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: FailureProvider, Collection: collection, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransport(err)
		c.log.Warn("opensea request failed", "collection", collection, "kind", kind.String(), "error", err)
		return nil, &FetchError{Kind: kind, Collection: collection, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.pacer.Cooldown(c.cooldown)
		c.log.Warn("opensea rate limited, cooling down", "collection", collection, "cooldown", c.cooldown)
		return nil, &FetchError{Kind: FailureRateLimited, Collection: collection, Status: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		c.log.Warn("opensea api error", "collection", collection, "status", resp.StatusCode, "body", string(body))
		return nil, &FetchError{Kind: FailureProvider, Collection: collection, Status: resp.StatusCode}
	}

	var stats models.CollectionStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		if kind := classifyTransport(err); kind == FailureTimeout || isReadFailure(err) {
			return nil, &FetchError{Kind: kind, Collection: collection, Status: resp.StatusCode, Err: err}
		}
		return nil, &FetchError{Kind: FailureProvider, Collection: collection, Status: resp.StatusCode,
			Err: fmt.Errorf("failed to decode stats: %w", err)}
	}
	if stats.Total == nil {
		return nil, &FetchError{Kind: FailureProvider, Collection: collection, Status: resp.StatusCode,
			Err: errors.New("stats response has no total")}
	}
	return &stats, nil
}

func classifyTransport(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureNetwork
}

// isReadFailure reports whether err came from the connection rather than
// from malformed JSON.
func isReadFailure(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
