package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/patient-insight-server/internal/domain"
)

const (
	defaultRequestsPerSecond = 10.0
	defaultBurst             = 20

	// Clients idle longer than this are evicted from the limiter map.
	limiterIdleThreshold = time.Hour
	limiterSweepInterval = 10 * time.Minute
)

// clientLimiter tracks the token bucket for a single client address.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP so a single chatty client
// cannot starve the generation engine for everyone else.
type RateLimiter struct {
	logger  *logrus.Logger
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

// NewRateLimiter creates a per-client rate limiter allowing requestsPerSecond
// sustained throughput with bursts up to burst. Non-positive values fall back
// to the defaults.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *logrus.Logger) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}

	rl := &RateLimiter{
		logger:  logger,
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
	}

	// Start cleanup goroutine
	go rl.startCleanupRoutine()

	return rl
}

// Allow reports whether the given client may proceed, consuming a token
// when it can.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[clientID]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientID] = client
	}
	client.lastSeen = time.Now()

	return client.limiter.Allow()
}

// ClientCount returns the number of tracked clients.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.clients)
}

// Middleware rejects over-limit requests with 429 before they reach the
// pipeline.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.ClientIP()
		if rl.Allow(clientID) {
			c.Next()
			return
		}

		if rl.logger != nil {
			rl.logger.WithFields(logrus.Fields{
				"client_ip": clientID,
				"path":      c.Request.URL.Path,
			}).Warn("Request denied: rate limit exceeded")
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
			domain.ErrRateLimit, "rate limit exceeded, slow down and retry", "", c.GetString("correlation_id")))
	}
}

// startCleanupRoutine periodically evicts limiter state for idle clients.
func (rl *RateLimiter) startCleanupRoutine() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.removeIdleClients()
	}
}

func (rl *RateLimiter) removeIdleClients() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0
	for clientID, client := range rl.clients {
		if now.Sub(client.lastSeen) > limiterIdleThreshold {
			delete(rl.clients, clientID)
			removed++
		}
	}

	if removed > 0 && rl.logger != nil {
		rl.logger.WithField("cleaned_count", removed).Info("Cleaned up idle rate limiter clients")
	}
}
