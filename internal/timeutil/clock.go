// Package timeutil abstracts wall-clock time and tickers so the progress
// cadence can be driven by hand in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the current time and periodic tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock with the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t realTicker) C() <-chan time.Time { return t.ticker.C }
func (t realTicker) Stop()               { t.ticker.Stop() }

// ManualClock is a Clock whose tickers only fire when Tick is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ManualTicker
}

// NewManualClock returns a ManualClock set to now.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward without firing tickers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &ManualTicker{ch: make(chan time.Time, 1), interval: d}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick fires every live ticker once with the current time plus its interval.
// The clock itself does not move; use Advance for that. A tick is dropped if the previous one has not been consumed, like time.Ticker.
func (c *ManualClock) Tick() {
	c.mu.Lock()
	live := make([]*ManualTicker, 0, len(c.tickers))
	for _, t := range c.tickers {
		if !t.stopped() {
			live = append(live, t)
		}
	}
	c.tickers = live
	now := c.now
	c.mu.Unlock()

	for _, t := range live {
		t.fire(now.Add(t.interval))
	}
}

// ActiveTickers reports how many tickers have not been stopped.
func (c *ManualClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

// ManualTicker is the Ticker handed out by ManualClock.
type ManualTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	halted   bool
}

func (t *ManualTicker) C() <-chan time.Time { return t.ch }

func (t *ManualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halted = true
}

func (t *ManualTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halted
}

func (t *ManualTicker) fire(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}
