package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luckfunc/floorbot/internal/models"
)

// fakeClock jumps forward by d on every After call and fires immediately.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// frozenClock never moves; After fires immediately and records the wake time.
type frozenClock struct {
	mu    sync.Mutex
	now   time.Time
	wakes []time.Time
}

func (c *frozenClock) Now() time.Time { return c.now }

func (c *frozenClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	wake := c.now.Add(d)
	c.wakes = append(c.wakes, wake)
	ch := make(chan time.Time, 1)
	ch <- wake
	return ch
}

// memoryStore is an in-memory StateStore that counts writes.
type memoryStore struct {
	mu      sync.Mutex
	state   models.TrackedState
	loadErr error
	saveErr error
	saves   int
	onSave  func()
}

func (s *memoryStore) Load(context.Context) (models.TrackedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.state == nil {
		return models.TrackedState{}, nil
	}
	return s.state.Clone(), nil
}

func (s *memoryStore) Save(_ context.Context, state models.TrackedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.onSave != nil {
		s.onSave()
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = state.Clone()
	return nil
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// scriptedFetcher returns queued results per collection.
type scriptedFetcher struct {
	mu      sync.Mutex
	results map[string][]fetchResult
	calls   []string
}

type fetchResult struct {
	quote *models.PriceQuote
	err   error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{results: make(map[string][]fetchResult)}
}

func (f *scriptedFetcher) push(collection string, quote *models.PriceQuote, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[collection] = append(f.results[collection], fetchResult{quote: quote, err: err})
}

func (f *scriptedFetcher) FetchQuote(_ context.Context, collection string) (*models.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, collection)
	queue := f.results[collection]
	if len(queue) == 0 {
		return nil, &FetchError{Kind: FailureProvider, Collection: collection, Err: errors.New("no scripted result")}
	}
	f.results[collection] = queue[1:]
	return queue[0].quote, queue[0].err
}

type sentAlert struct {
	subscriber string
	text       string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentAlert
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, subscriber, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentAlert{subscriber: subscriber, text: text})
	return n.err
}

func (n *recordingNotifier) alerts() []sentAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentAlert(nil), n.sent...)
}

// manualClock only moves on Advance; After channels fire once their
// deadline has been passed.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []manualWaiter
	added   chan struct{}
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		added: make(chan struct{}, 16),
	}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if !at.After(c.now) {
		ch <- c.now
		c.mu.Unlock()
		return ch
	}
	c.waiters = append(c.waiters, manualWaiter{at: at, ch: ch})
	c.mu.Unlock()
	c.added <- struct{}{}
	return ch
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if w.at.After(c.now) {
			pending = append(pending, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = pending
}

// awaitSleeper blocks until some goroutine has called After.
func (c *manualClock) awaitSleeper(t *testing.T) {
	t.Helper()
	select {
	case <-c.added:
	case <-time.After(2 * time.Second):
		t.Fatal("no goroutine started sleeping")
	}
}
