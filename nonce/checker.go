// Package nonce implements short-lived replay-prevention for (key-id, ts,
// nonce) tuples, as consulted by the auth proxy's NONCE pipeline stage.
package nonce

import (
	"sync"
	"time"
)

const (
	defaultSweepInterval = 30 * time.Second
)

// Persistence lets a Checker survive a restart without momentarily
// re-accepting tuples it had already seen. Purely an optimization: the
// contract never requires durability across restarts.
type Persistence interface {
	// Ensure records tuple as observed at seenAt, returning true if it was
	// already present.
	Ensure(tuple string, seenAt time.Time) (alreadySeen bool, err error)
	// Recent returns tuples observed at or after cutoff, for warming a
	// freshly started Checker's in-memory map.
	Recent(cutoff time.Time) (map[string]time.Time, error)
	// Prune discards tuples observed before cutoff.
	Prune(cutoff time.Time) error
}

// Checker rejects replays within a fixed freshness window (maxage). It is
// the only mutable shared state in the auth proxy; its eviction sweep never
// holds the map across I/O.
type Checker struct {
	maxAge time.Duration
	nowFn  func() time.Time

	mu      sync.Mutex
	seen    map[string]time.Time
	persist Persistence

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewChecker builds a Checker with the given freshness window. If nowFn is
// nil, time.Now is used. If persist is non-nil, it is used to warm the
// in-memory map and to mirror every newly observed tuple.
func NewChecker(maxAge time.Duration, nowFn func() time.Time, persist Persistence) *Checker {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	c := &Checker{
		maxAge:  maxAge,
		nowFn:   nowFn,
		seen:    make(map[string]time.Time),
		persist: persist,
		stopCh:  make(chan struct{}),
	}
	if persist != nil {
		if recent, err := persist.Recent(nowFn().Add(-maxAge)); err == nil {
			for tuple, seenAt := range recent {
				c.seen[tuple] = seenAt
			}
		}
	}
	go c.sweepLoop()
	return c
}

// Check reports whether the (keyID, ts, nonce) tuple has not been observed
// within the freshness window, marking it observed as a side effect. A
// false return means the caller must treat the request as a replay.
func (c *Checker) Check(keyID, ts, nonce string) bool {
	tuple := keyID + "|" + ts + "|" + nonce
	now := c.nowFn()

	c.mu.Lock()
	if seenAt, ok := c.seen[tuple]; ok && now.Sub(seenAt) <= c.maxAge {
		c.mu.Unlock()
		return false
	}
	c.seen[tuple] = now
	c.mu.Unlock()

	if c.persist != nil {
		if alreadySeen, err := c.persist.Ensure(tuple, now); err == nil && alreadySeen {
			return false
		}
	}
	return true
}

// Stop halts the eviction sweep goroutine. Safe to call more than once.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Checker) sweepLoop() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Checker) evictExpired() {
	cutoff := c.nowFn().Add(-c.maxAge)

	c.mu.Lock()
	for tuple, seenAt := range c.seen {
		if seenAt.Before(cutoff) {
			delete(c.seen, tuple)
		}
	}
	c.mu.Unlock()

	if c.persist != nil {
		_ = c.persist.Prune(cutoff)
	}
}
