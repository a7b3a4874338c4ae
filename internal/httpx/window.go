package httpx

import (
	"sync"
	"time"
)

// window is one domain's sliding request log: timestamps of calls made
// within the trailing span. Timestamps are pruned lazily on each check.
type window struct {
	max   int
	span  time.Duration
	calls []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

// domainWindows tracks one window per domain. The check-then-append on
// reserve happens under one lock so interleaved adapter fetches cannot
// exceed the quota.
type domainWindows struct {
	defaultMax  int
	defaultSpan time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

func newDomainWindows(max int, span time.Duration) *domainWindows {
	return &domainWindows{
		defaultMax:  max,
		defaultSpan: span,
		windows:     make(map[string]*window),
	}
}

func (d *domainWindows) setLimit(domain string, max int, span time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windowLocked(domain)
	if max > 0 {
		w.max = max
	}
	if span > 0 {
		w.span = span
	}
}

// reserve claims a slot in the domain's window. The returned timestamp
// identifies the claim so a failed call can release it; only successful
// calls end up counted against the quota.
func (d *domainWindows) reserve(domain string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windowLocked(domain)
	now := time.Now()
	w.prune(now)
	if len(w.calls) >= w.max {
		return time.Time{}, false
	}
	w.calls = append(w.calls, now)
	return now, true
}

func (d *domainWindows) release(domain string, reservedAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windowLocked(domain)
	for i := len(w.calls) - 1; i >= 0; i-- {
		if w.calls[i].Equal(reservedAt) {
			w.calls = append(w.calls[:i], w.calls[i+1:]...)
			return
		}
	}
}

func (d *domainWindows) windowLocked(domain string) *window {
	w, ok := d.windows[domain]
	if !ok {
		w = &window{max: d.defaultMax, span: d.defaultSpan}
		d.windows[domain] = w
	}
	return w
}
