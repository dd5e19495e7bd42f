package notify

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// dedupCacheSize bounds how many recent notification keys are remembered.
const dedupCacheSize = 512

// Deduper suppresses notifications whose key was already delivered within
// the TTL. Server broadcasts fan out to every connection of a user, so the
// same logical event can arrive more than once.
type Deduper struct {
	next Notifier
	seen *expirable.LRU[string, struct{}]
}

// NewDeduper wraps next with key-based de-duplication.
func NewDeduper(next Notifier, ttl time.Duration) *Deduper {
	return &Deduper{
		next: next,
		seen: expirable.NewLRU[string, struct{}](dedupCacheSize, nil, ttl),
	}
}

// Notify implements Notifier.
func (d *Deduper) Notify(n Notification) {
	if n.Key != "" {
		if _, dup := d.seen.Get(n.Key); dup {
			return
		}
		d.seen.Add(n.Key, struct{}{})
	}
	d.next.Notify(n)
}

// Limiter passes at most one notification per interval, dropping the rest.
// Used for transient transport notices that would otherwise spam the user
// during a flapping connection.
type Limiter struct {
	next     Notifier
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewLimiter wraps next with a minimum interval between deliveries.
func NewLimiter(next Notifier, interval time.Duration) *Limiter {
	return &Limiter{next: next, interval: interval}
}

// Notify implements Notifier.
func (l *Limiter) Notify(n Notification) {
	l.mu.Lock()
	now := time.Now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		l.mu.Unlock()
		return
	}
	l.last = now
	l.mu.Unlock()

	l.next.Notify(n)
}
