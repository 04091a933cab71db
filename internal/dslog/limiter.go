package dslog

import "time"

// Limiter thins log inserts for one key: after an allowed event, further
// events are dropped until Interval has passed. A zero or negative Interval
// allows everything.
type Limiter struct {
	Interval time.Duration
	next     time.Time
}

// NewLimiter returns a limiter for an interval given in seconds.
func NewLimiter(seconds int) Limiter {
	if seconds <= 0 {
		return Limiter{}
	}
	return Limiter{Interval: time.Duration(seconds) * time.Second}
}

// Allow reports whether an event at now may be logged, and if so starts a
// new interval.
func (l *Limiter) Allow(now time.Time) bool {
	if l.Interval <= 0 {
		return true
	}
	if now.Before(l.next) {
		return false
	}
	l.next = now.Add(l.Interval)
	return true
}
