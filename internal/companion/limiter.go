package companion

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters hands out one token bucket per user.
type Limiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewLimiters(perMinute float64, burst int) *Limiters {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
	}
}

func (l *Limiters) get(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	return lim
}

func (l *Limiters) Allow(userID string) bool {
	return l.AllowAt(userID, time.Now())
}

func (l *Limiters) AllowAt(userID string, t time.Time) bool {
	return l.get(userID).AllowN(t, 1)
}
