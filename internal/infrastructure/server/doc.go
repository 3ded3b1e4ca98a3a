// Package server assembles the service: sandbox pool and program cache,
// runner, middleware and routes, plus graceful shutdown.
package server
