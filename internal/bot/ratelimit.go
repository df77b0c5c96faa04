package bot

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimitConfig holds the per-caller token bucket settings.
type RateLimitConfig struct {
	// PerMinute is the sustained number of bot calls a caller may make.
	PerMinute float64
	// Burst is the number of calls allowed back to back.
	Burst int
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter enforces a token bucket per caller email.
type Limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	callers map[string]*callerLimiter
	now     func() time.Time
}

// NewLimiter returns nil when PerMinute is zero, which disables limiting.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.PerMinute <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{
		cfg:     cfg,
		callers: make(map[string]*callerLimiter),
		now:     time.Now,
	}
}

// Allow reports whether caller may make another call now. A nil Limiter allows everything.
func (l *Limiter) Allow(caller string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := strings.ToLower(caller)

	cl, ok := l.callers[key]
	if !ok {
		l.prune(now)
		cl = &callerLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.PerMinute/60), l.cfg.Burst)}
		l.callers[key] = cl
	}
	cl.lastSeen = now

	return cl.limiter.AllowN(now, 1)
}

// prune drops callers idle longer than limiterIdleTTL. Must hold mu.
func (l *Limiter) prune(now time.Time) {
	for key, cl := range l.callers {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(l.callers, key)
		}
	}
}
