// Package admission throttles how fast records move from sanitized to stored.
//
// A sliding-window Limiter decides whether a record may be processed now;
// records it turns away wait in a bounded Queue that is drained on a timer.
package admission

import (
	"sync"
	"time"
)

// Limiter is a sliding-window counter: at most max admissions in any window.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewLimiter creates a sliding-window limiter.
func NewLimiter(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		max:    max,
		window: window,
		stamps: make([]time.Time, 0, max),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Allow prunes expired admissions and admits iff fewer than max remain,
// recording the admission.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// LimiterStatus is a point-in-time view of the window.
type LimiterStatus struct {
	CurrentRequests int        `json:"currentRequests"`
	MaxRequests     int        `json:"maxRequests"`
	WindowMs        int64      `json:"windowMs"`
	CanProceed      bool       `json:"canProceed"`
	NextSlotAt      *time.Time `json:"nextSlotAt,omitempty"`
}

// Status reports window occupancy without recording an admission.
// NextSlotAt is set only when the window is full.
func (l *Limiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	st := LimiterStatus{
		CurrentRequests: len(l.stamps),
		MaxRequests:     l.max,
		WindowMs:        l.window.Milliseconds(),
		CanProceed:      len(l.stamps) < l.max,
	}
	if !st.CanProceed {
		next := l.stamps[0].Add(l.window)
		st.NextSlotAt = &next
	}
	return st
}

// prune drops admissions that left the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
