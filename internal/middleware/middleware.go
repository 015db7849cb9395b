package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}
		requestID, _ := c.Get("request_id")

		logger.Info("HTTP Request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

type rateLimiterStore struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

func (s *rateLimiterStore) getLimiter(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[ip]
	if !exists {
		// 200 requests per minute per IP, bursts allowed.
		limiter = rate.NewLimiter(rate.Every(time.Minute/200), 200)
		s.limiters[ip] = limiter
	}
	return limiter
}

// RateLimit limits requests per client IP.
func RateLimit(logger *slog.Logger) gin.HandlerFunc {
	store := &rateLimiterStore{limiters: make(map[string]*rate.Limiter)}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !store.getLimiter(ip).Allow() {
			logger.Warn("Rate limit exceeded", "client_ip", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse("rate limit exceeded, try again later"))
			return
		}
		c.Next()
	}
}

// Auth validates the bearer token (Authorization header, falling back to the
// access_token cookie) and stores the caller identity in the context.
func Auth(verifier *helpers.TokenVerifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if token == "" {
			token, _ = c.Cookie("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("authentication token not provided"))
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			logger.Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("invalid or expired token"))
			return
		}

		c.Set("identity", identity)
		c.Next()
	}
}

// CallerIdentity pulls the identity set by Auth out of the gin context.
func CallerIdentity(c *gin.Context) (*helpers.Identity, bool) {
	v, exists := c.Get("identity")
	if !exists {
		return nil, false
	}
	identity, ok := v.(*helpers.Identity)
	return identity, ok
}

// RequireRole rejects callers whose role is not in the allowed set. Admins
// always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CallerIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("authentication required"))
			return
		}
		if identity.IsAdmin() {
			c.Next()
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse("access denied for role "+identity.Role))
	}
}
