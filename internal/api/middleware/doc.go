// Package middleware holds the Gin middleware shared by the HTTP and
// stream surfaces: CORS and per-client or global rate limiting.
package middleware
