// Package middleware provides HTTP middleware for the presence server.
//
// Middleware compose with Chain, outermost first:
//
//	handler := middleware.Chain(mux,
//	    middleware.RequestID,
//	    middleware.Logger,
//	    middleware.Recovery,
//	    middleware.CORS(cfg.Server.AllowedOrigins),
//	)
//
// # Authentication
//
// Auth requires a bearer token. OptionalAuth admits guests, which is what the
// socket upgrade uses: a missing or invalid token yields an anonymous
// connection rather than a rejection. Tokens are read from the Authorization
// header or, for browsers, the access_token query parameter.
//
// # Rate Limiting
//
// RateLimiter is a token bucket keyed by an arbitrary string. RateLimit applies
// it per account (or remote address) to HTTP routes; the socket handler applies
// the same limiter per connection to inbound events.
package middleware
