package services

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by the pacer and the monitor.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Pacer spaces outbound requests. Every caller reserves the next free slot
// under the lock, so concurrent callers are released one spacing apart.
// A cooldown also holds back callers that reserved before it started.
type Pacer struct {
	mu        sync.Mutex
	clock     Clock
	spacing   time.Duration
	next      time.Time
	holdUntil time.Time
}

func NewPacer(clock Clock, spacing time.Duration) *Pacer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Pacer{clock: clock, spacing: spacing}
}

// Wait blocks until the caller's slot. If ctx ends first the slot is
// still consumed.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	slot := p.reserveLocked(p.clock.Now())
	p.mu.Unlock()

	for {
		if delay := slot.Sub(p.clock.Now()); delay > 0 {
			select {
			case <-p.clock.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		p.mu.Lock()
		if !p.holdUntil.After(slot) {
			p.mu.Unlock()
			return nil
		}
		// a cooldown started while we slept
		slot = p.reserveLocked(p.holdUntil)
		p.mu.Unlock()
	}
}

// Cooldown holds back every caller not yet released until at least d
// from now.
func (p *Pacer) Cooldown(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.clock.Now().Add(d)
	if until.After(p.holdUntil) {
		p.holdUntil = until
	}
	if until.After(p.next) {
		p.next = until
	}
}

func (p *Pacer) reserveLocked(earliest time.Time) time.Time {
	slot := earliest
	if p.next.After(slot) {
		slot = p.next
	}
	p.next = slot.Add(p.spacing)
	return slot
}
