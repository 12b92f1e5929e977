package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luckfunc/floorbot/internal/models"
)

// StateStore is the durable home of the tracked state. It is read once at
// startup and rewritten wholesale after every mutation.
type StateStore interface {
	Load(ctx context.Context) (models.TrackedState, error)
	Save(ctx context.Context, state models.TrackedState) error
}

// Tracker owns which collections every subscriber watches.
type Tracker struct {
	mu    sync.RWMutex
	store StateStore
	state models.TrackedState
	now   func() time.Time
	log   *slog.Logger
}

// NewTracker loads the state from store. Unreadable state is logged and
// replaced by an empty one.
func NewTracker(ctx context.Context, store StateStore, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{
		store: store,
		state: make(models.TrackedState),
		now:   time.Now,
		log:   log,
	}

	state, err := store.Load(ctx)
	if err != nil {
		log.Warn("failed to load tracked collections, starting empty", "error", err)
		return t
	}
	for subscriber, collections := range state {
		if len(collections) == 0 {
			continue
		}
		t.state[subscriber] = collections
	}
	log.Info("tracked collections loaded", "subscribers", len(t.state), "pairs", t.state.Pairs())
	return t
}

// AddCollection starts (or restarts) tracking a collection. Any previous
// record is replaced and its last price forgotten.
func (t *Tracker) AddCollection(ctx context.Context, subscriber, collection string, threshold decimal.NullDecimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	collections, ok := t.state[subscriber]
	if !ok {
		collections = make(map[string]models.WatchRecord)
		t.state[subscriber] = collections
	}
	collections[collection] = models.WatchRecord{
		Threshold: threshold,
		AddedAt:   t.now().UTC(),
	}
	return t.persist(ctx)
}

// RemoveCollection stops tracking a collection and reports whether it was
// tracked. Nothing is written when it was not.
func (t *Tracker) RemoveCollection(ctx context.Context, subscriber, collection string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	collections, ok := t.state[subscriber]
	if !ok {
		return false, nil
	}
	if _, ok := collections[collection]; !ok {
		return false, nil
	}

	delete(collections, collection)
	if len(collections) == 0 {
		delete(t.state, subscriber)
	}
	return true, t.persist(ctx)
}

// GetTracked returns a copy of one subscriber's records.
func (t *Tracker) GetTracked(subscriber string) map[string]models.WatchRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]models.WatchRecord, len(t.state[subscriber]))
	for collection, record := range t.state[subscriber] {
		out[collection] = record
	}
	return out
}

// GetAllTracked returns a deep copy of the whole state.
func (t *Tracker) GetAllTracked() models.TrackedState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// UpdatePrice stores price as the pair's last price and returns the
// previous one. An invalid result means either the first observation or an
// untracked pair; neither should notify.
func (t *Tracker) UpdatePrice(ctx context.Context, subscriber, collection string, price decimal.Decimal) (decimal.NullDecimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, _, ok := t.swapPriceLocked(subscriber, collection, price)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	return previous, t.persist(ctx)
}

// ObservePrice is UpdatePrice followed by ShouldNotify, evaluated against
// the same record so a concurrent re-add cannot pair an old price with a
// new threshold.
func (t *Tracker) ObservePrice(ctx context.Context, subscriber, collection string, price decimal.Decimal) (decimal.NullDecimal, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, threshold, ok := t.swapPriceLocked(subscriber, collection, price)
	if !ok {
		return decimal.NullDecimal{}, false, nil
	}
	return previous, crossesThreshold(previous, price, threshold), t.persist(ctx)
}

// ShouldNotify reports whether the move from oldPrice to newPrice crosses
// the pair's threshold in either direction.
func (t *Tracker) ShouldNotify(subscriber, collection string, newPrice decimal.Decimal, oldPrice decimal.NullDecimal) bool {
	t.mu.RLock()
	record, ok := t.state[subscriber][collection]
	t.mu.RUnlock()

	return ok && crossesThreshold(oldPrice, newPrice, record.Threshold)
}

func (t *Tracker) swapPriceLocked(subscriber, collection string, price decimal.Decimal) (decimal.NullDecimal, decimal.NullDecimal, bool) {
	record, ok := t.state[subscriber][collection]
	if !ok {
		return decimal.NullDecimal{}, decimal.NullDecimal{}, false
	}
	previous := record.LastPrice
	record.LastPrice = decimal.NewNullDecimal(price)
	t.state[subscriber][collection] = record
	return previous, record.Threshold, true
}

func crossesThreshold(oldPrice decimal.NullDecimal, newPrice decimal.Decimal, threshold decimal.NullDecimal) bool {
	if !oldPrice.Valid || !threshold.Valid || oldPrice.Decimal.IsZero() {
		return false
	}
	return PercentChange(oldPrice.Decimal, newPrice).Abs().GreaterThanOrEqual(threshold.Decimal)
}

// PercentChange is (newPrice - oldPrice) / oldPrice * 100. oldPrice must be
// non-zero.
func PercentChange(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	return newPrice.Sub(oldPrice).Div(oldPrice).Mul(hundred)
}

// persist must be called with mu held.
func (t *Tracker) persist(ctx context.Context) error {
	if err := t.store.Save(ctx, t.state); err != nil {
		t.log.Error("failed to save tracked collections", "error", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
