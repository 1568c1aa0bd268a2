package gateway

import (
	"sync"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Audio uploads arrive in
// bursts, so the bucket is sized for a short backlog rather than a steady rate.
type RateLimiter struct {
	cfg     RateLimiterConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)}
		r.clients[key] = c
	}
	c.lastSeen = r.now()
	return c.limiter.Allow()
}

// Evict drops clients idle for longer than IdleTTL and returns how many went.
func (r *RateLimiter) Evict() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, key)
			n++
		}
	}
	return n
}

func (r *RateLimiter) Run() {
	ticker := time.NewTicker(r.cfg.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}

func (r *RateLimiter) Stop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !r.Allow(c.RealIP()) {
				return shared.TooManyRequests("rate_limit_exceeded", "too many requests")
			}
			return next(c)
		}
	}
}
