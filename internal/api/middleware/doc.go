// Package middleware provides the HTTP middleware stack for the chat widget server.
//
// Middleware stack includes:
//   - RequestID: Propagates or mints an X-Request-ID (ULID)
//   - AccessLog: One structured zap line per request
//   - CORS: Cross-origin access for host pages embedding the widget
//   - RateLimit: Per-IP token bucket rate limiting with idle eviction
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.CORSConfigFor(cfg.CORS.AllowOrigins)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
