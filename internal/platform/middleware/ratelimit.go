package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/medcare/medcare/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops the limiter of a caller not seen for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         100,
		IdleTTL:           10 * time.Minute,
	}
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per caller key and sweeps idle ones at most
// once per IdleTTL.
type limiterSet struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	callers   map[string]*callerLimiter
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{cfg: cfg, callers: make(map[string]*callerLimiter), lastSweep: time.Now()}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl := s.cfg.IdleTTL; ttl > 0 && now.Sub(s.lastSweep) > ttl {
		for k, cl := range s.callers {
			if now.Sub(cl.lastSeen) > ttl {
				delete(s.callers, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.callers[key]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.callers[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callers)
}

// RateLimit limits requests per client IP, narrowed to the user when the
// request is authenticated. Rejected requests get a 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiterSet(cfg))
}

func rateLimit(set *limiterSet) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(set.cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = uid + ":" + key
			}

			now := time.Now()
			res := set.get(key, now).ReserveN(now, 1)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			if !res.OK() {
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
