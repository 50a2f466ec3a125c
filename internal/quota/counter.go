// Package quota tracks calls against a provider's daily call ceiling.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// Store persists the number of calls made on a given day
type Store interface {
	Load(ctx context.Context, day string) (int, error)
	Save(ctx context.Context, day string, calls int) error
	Close() error
}

// Counter gates calls to a rate-limited provider. A caller must Reserve a slot
// before calling, then Commit it once the provider answered or Release it if
// no call was made. Reservations count against the ceiling so concurrent
// callers cannot overshoot it.
type Counter struct {
	mu       sync.Mutex
	limit    int
	count    int
	inFlight int
	day      string
	store    Store
	now      func() time.Time
}

// Option configures a Counter
type Option func(*Counter)

// WithStore persists the count. Without a store the count lives for the process only.
func WithStore(s Store) Option {
	return func(c *Counter) {
		c.store = s
	}
}

// WithClock overrides the clock used to detect day rollover
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		c.now = now
	}
}

// NewCounter creates a Counter for the given daily ceiling and loads today's
// usage from the store if one is configured
func NewCounter(ctx context.Context, limit int, opts ...Option) (*Counter, error) {
	c := &Counter{
		limit: limit,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.day = c.today()
	if c.store != nil {
		n, err := c.store.Load(ctx, c.day)
		if err != nil {
			return nil, fmt.Errorf("failed to load quota usage for %s: %w", c.day, err)
		}
		c.count = n
	}

	return c, nil
}

// InProcess returns a counter that lives for the process only
func InProcess(limit int) *Counter {
	c := &Counter{limit: limit, now: time.Now}
	c.day = c.today()
	return c
}

func (c *Counter) today() string {
	return c.now().Format(dayLayout)
}

// rollover resets the count when the calendar day changed. Only meaningful
// for persisted counters; a process-scoped counter keeps counting.
func (c *Counter) rollover() {
	if c.store == nil {
		return
	}
	if day := c.today(); day != c.day {
		c.day = day
		c.count = 0
	}
}

// Reserve reports whether another call may be made and, if so, holds a slot for it
func (c *Counter) Reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover()
	if c.count+c.inFlight >= c.limit {
		return false
	}
	c.inFlight++
	return true
}

// Release gives back a reserved slot without counting a call
func (c *Counter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight > 0 {
		c.inFlight--
	}
}

// Commit converts a reserved slot into a counted call and returns the new count.
// A persistence failure is returned alongside the in-memory count, which is
// always updated.
func (c *Counter) Commit(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight > 0 {
		c.inFlight--
	}
	c.count++

	if c.store != nil {
		if err := c.store.Save(ctx, c.day, c.count); err != nil {
			return c.count, fmt.Errorf("failed to persist quota usage: %w", err)
		}
	}

	return c.count, nil
}

// Count returns the number of calls counted today
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Limit returns the daily ceiling
func (c *Counter) Limit() int {
	return c.limit
}

// Close closes the underlying store
func (c *Counter) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
