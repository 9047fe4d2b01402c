package server

import (
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// uploadLimiter keeps one token bucket per client IP for image uploads.
type uploadLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	log     logrus.FieldLogger
}

func newUploadLimiter(perMinute float64, burst int, log logrus.FieldLogger) *uploadLimiter {
	if burst < 1 {
		burst = 1
	}
	return &uploadLimiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perMinute / 60),
		burst:   burst,
		log:     log,
	}
}

func (u *uploadLimiter) limiterFor(ip string) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()

	l, ok := u.buckets[ip]
	if !ok {
		l = rate.NewLimiter(u.rate, u.burst)
		u.buckets[ip] = l
	}
	return l
}

// Middleware rejects requests over the client's budget with 429.
func (u *uploadLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !u.limiterFor(ip).Allow() {
			u.log.WithField("ip", ip).Warn("too many uploads")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many uploads, try again shortly"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr, which RealIP may already have
// replaced with a bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
