package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckfunc/floorbot/internal/logger"
	"github.com/luckfunc/floorbot/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func newTestTracker(t *testing.T, store *memoryStore) *Tracker {
	t.Helper()
	tracker := NewTracker(context.Background(), store, logger.Discard())
	tracker.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return tracker
}

func TestNewTrackerLoadsState(t *testing.T) {
	store := &memoryStore{state: models.TrackedState{
		"chan": {"punks": {LastPrice: nullDec("9.5")}},
		"gone": {},
	}}
	tracker := newTestTracker(t, store)

	all := tracker.GetAllTracked()
	assert.Len(t, all, 1)
	assert.True(t, all["chan"]["punks"].LastPrice.Decimal.Equal(dec("9.5")))
}

func TestNewTrackerSwallowsCorruptState(t *testing.T) {
	store := &memoryStore{loadErr: errors.New("unexpected end of JSON input")}
	tracker := newTestTracker(t, store)

	assert.Empty(t, tracker.GetAllTracked())
	require.NoError(t, tracker.AddCollection(context.Background(), "chan", "punks", decimal.NullDecimal{}))
}

func TestAddCollection(t *testing.T) {
	store := &memoryStore{}
	tracker := newTestTracker(t, store)
	ctx := context.Background()

	require.NoError(t, tracker.AddCollection(ctx, "chan", "CryptoPunks", nullDec("5")))
	require.NoError(t, tracker.AddCollection(ctx, "chan", "azuki", decimal.NullDecimal{}))

	tracked := tracker.GetTracked("chan")
	require.Len(t, tracked, 2)
	punks := tracked["CryptoPunks"]
	assert.False(t, punks.LastPrice.Valid)
	assert.True(t, punks.Threshold.Decimal.Equal(dec("5")))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), punks.AddedAt)
	assert.False(t, tracked["azuki"].Threshold.Valid)

	assert.Equal(t, 2, store.saveCount())
	assert.Len(t, store.state["chan"], 2)
}

func TestAddCollectionResetsLastPrice(t *testing.T) {
	tracker := newTestTracker(t, &memoryStore{})
	ctx := context.Background()

	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", nullDec("5")))
	_, err := tracker.UpdatePrice(ctx, "chan", "punks", dec("10"))
	require.NoError(t, err)

	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", nullDec("2")))
	record := tracker.GetTracked("chan")["punks"]
	assert.False(t, record.LastPrice.Valid)
	assert.True(t, record.Threshold.Decimal.Equal(dec("2")))
}

func TestGetTrackedReturnsCopy(t *testing.T) {
	tracker := newTestTracker(t, &memoryStore{})
	require.NoError(t, tracker.AddCollection(context.Background(), "chan", "punks", decimal.NullDecimal{}))

	tracked := tracker.GetTracked("chan")
	delete(tracked, "punks")
	all := tracker.GetAllTracked()
	delete(all["chan"], "punks")

	assert.Len(t, tracker.GetTracked("chan"), 1)
	assert.Empty(t, tracker.GetTracked("unknown"))
	assert.NotNil(t, tracker.GetTracked("unknown"))
}

func TestUpdatePriceChain(t *testing.T) {
	store := &memoryStore{}
	tracker := newTestTracker(t, store)
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", nullDec("5")))

	first, err := tracker.UpdatePrice(ctx, "chan", "punks", dec("10.0"))
	require.NoError(t, err)
	assert.False(t, first.Valid)

	second, err := tracker.UpdatePrice(ctx, "chan", "punks", dec("12.0"))
	require.NoError(t, err)
	require.True(t, second.Valid)
	assert.True(t, second.Decimal.Equal(dec("10.0")))

	final := tracker.GetTracked("chan")["punks"].LastPrice
	assert.True(t, final.Decimal.Equal(dec("12.0")))
	assert.True(t, store.state["chan"]["punks"].LastPrice.Decimal.Equal(dec("12.0")))
}

func TestUpdatePriceUntrackedPair(t *testing.T) {
	store := &memoryStore{}
	tracker := newTestTracker(t, store)

	previous, err := tracker.UpdatePrice(context.Background(), "chan", "punks", dec("1"))
	require.NoError(t, err)
	assert.False(t, previous.Valid)
	assert.Zero(t, store.saveCount())
	assert.Empty(t, tracker.GetAllTracked())
}

func TestUpdatePriceConcurrentChain(t *testing.T) {
	tracker := newTestTracker(t, &memoryStore{})
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", decimal.NullDecimal{}))

	const writers = 50
	previous := make(chan decimal.NullDecimal, writers)
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			old, err := tracker.UpdatePrice(ctx, "chan", "punks", decimal.NewFromInt(int64(i)))
			assert.NoError(t, err)
			previous <- old
		}(i)
	}
	wg.Wait()
	close(previous)

	seen := make(map[string]bool)
	absent := 0
	for old := range previous {
		if !old.Valid {
			absent++
			continue
		}
		key := old.Decimal.String()
		assert.False(t, seen[key], "two updates observed the same previous price %s", key)
		seen[key] = true
	}
	assert.Equal(t, 1, absent)
	assert.Len(t, seen, writers-1)
}

func TestRemoveCollection(t *testing.T) {
	store := &memoryStore{}
	tracker := newTestTracker(t, store)
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", decimal.NullDecimal{}))
	require.NoError(t, tracker.AddCollection(ctx, "chan", "azuki", decimal.NullDecimal{}))

	removed, err := tracker.RemoveCollection(ctx, "chan", "punks")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Contains(t, tracker.GetAllTracked(), "chan")

	removed, err = tracker.RemoveCollection(ctx, "chan", "azuki")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, tracker.GetAllTracked(), "chan")
	assert.NotContains(t, store.state, "chan")
	assert.Empty(t, tracker.GetTracked("chan"))
}

func TestRemoveMissingCollectionDoesNotWrite(t *testing.T) {
	store := &memoryStore{}
	tracker := newTestTracker(t, store)
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", decimal.NullDecimal{}))
	writes := store.saveCount()

	removed, err := tracker.RemoveCollection(ctx, "chan", "azuki")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = tracker.RemoveCollection(ctx, "other", "punks")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, writes, store.saveCount())
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("disk full")}
	tracker := newTestTracker(t, store)
	ctx := context.Background()

	err := tracker.AddCollection(ctx, "chan", "punks", nullDec("5"))
	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, tracker.GetTracked("chan"), 1)

	previous, err := tracker.UpdatePrice(ctx, "chan", "punks", dec("3"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.False(t, previous.Valid)
	assert.True(t, tracker.GetTracked("chan")["punks"].LastPrice.Decimal.Equal(dec("3")))
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		old, new string
		want     float64
	}{
		{"10", "10.6", 6},
		{"10.6", "10.7", 0.943396226415},
		{"2", "1", -50},
		{"0.123", "0.123", 0},
		{"3", "4", 33.333333333333},
	}
	for _, tc := range tests {
		got := PercentChange(dec(tc.old), dec(tc.new)).InexactFloat64()
		o, n := dec(tc.old).InexactFloat64(), dec(tc.new).InexactFloat64()
		assert.InDelta(t, (n-o)/o*100, got, 1e-9, "%s -> %s", tc.old, tc.new)
		assert.InDelta(t, tc.want, got, 1e-9, "%s -> %s", tc.old, tc.new)
	}
}

func TestShouldNotify(t *testing.T) {
	tracker := newTestTracker(t, &memoryStore{})
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "armed", nullDec("5")))
	require.NoError(t, tracker.AddCollection(ctx, "chan", "manual", decimal.NullDecimal{}))

	tests := []struct {
		name       string
		collection string
		old        decimal.NullDecimal
		new        string
		want       bool
	}{
		{"rise over threshold", "armed", nullDec("10"), "10.6", true},
		{"exactly at threshold", "armed", nullDec("10"), "10.5", true},
		{"fall over threshold", "armed", nullDec("10"), "9.4", true},
		{"below threshold", "armed", nullDec("10.6"), "10.7", false},
		{"no old price", "armed", decimal.NullDecimal{}, "20", false},
		{"zero old price", "armed", nullDec("0"), "20", false},
		{"no threshold", "manual", nullDec("10"), "50", false},
		{"untracked", "missing", nullDec("10"), "50", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tracker.ShouldNotify("chan", tc.collection, dec(tc.new), tc.old))
		})
	}
}

func TestObservePrice(t *testing.T) {
	tracker := newTestTracker(t, &memoryStore{})
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", nullDec("5")))

	previous, notify, err := tracker.ObservePrice(ctx, "chan", "punks", dec("10"))
	require.NoError(t, err)
	assert.False(t, previous.Valid)
	assert.False(t, notify)

	previous, notify, err = tracker.ObservePrice(ctx, "chan", "punks", dec("10.6"))
	require.NoError(t, err)
	assert.True(t, previous.Decimal.Equal(dec("10")))
	assert.True(t, notify)

	_, notify, err = tracker.ObservePrice(ctx, "chan", "punks", dec("10.7"))
	require.NoError(t, err)
	assert.False(t, notify)

	previous, notify, err = tracker.ObservePrice(ctx, "chan", "missing", dec("1"))
	require.NoError(t, err)
	assert.False(t, previous.Valid)
	assert.False(t, notify)
}

func TestObservePriceUsesThresholdOfSwappedRecord(t *testing.T) {
	store := &memoryStore{}
	tracker := newTestTracker(t, store)
	ctx := context.Background()
	require.NoError(t, tracker.AddCollection(ctx, "chan", "punks", nullDec("50")))
	_, err := tracker.UpdatePrice(ctx, "chan", "punks", dec("10"))
	require.NoError(t, err)

	// A re-add with a tight threshold races the observation.
	readded := make(chan struct{})
	var once sync.Once
	store.mu.Lock()
	store.onSave = func() {
		once.Do(func() {
			go func() {
				defer close(readded)
				assert.NoError(t, tracker.AddCollection(ctx, "chan", "punks", nullDec("1")))
			}()
		})
	}
	store.mu.Unlock()

	previous, notify, err := tracker.ObservePrice(ctx, "chan", "punks", dec("10.6"))
	require.NoError(t, err)
	assert.True(t, previous.Decimal.Equal(dec("10")))
	assert.False(t, notify, "6% move is judged by the 50% threshold it was observed under")

	<-readded
	record := tracker.GetTracked("chan")["punks"]
	assert.True(t, record.Threshold.Decimal.Equal(dec("1")))
	assert.False(t, record.LastPrice.Valid)
}
