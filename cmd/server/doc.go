// Package main is the entry point for the run-js server.
//
// The server runs untrusted scripts in pooled sandboxes and returns what
// they wrote to the console, either in one response or streamed.
//
// Endpoints:
//   - POST /run: execute a script and return events, value and error
//   - GET /stream: WebSocket, events streamed while the script runs
//   - GET /health, GET /stats, GET /metrics
//
// Configuration is read from defaults, then the file named by -config or
// RUNJS_CONFIG, then RUNJS_* environment variables.
//
// Usage:
//
//	./server -config runjs.yaml
//	./server -port 9000 -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
