// Package http implements the REST surface: script runs, health, pool
// statistics and the Prometheus endpoint.
package http
