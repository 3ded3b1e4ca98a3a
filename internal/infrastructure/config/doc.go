// Package config loads service configuration.
//
// Values start from Default, are overlaid by an optional YAML or TOML file
// named in RUNJS_CONFIG, and finally by environment variables. Each variable
// is read as RUNJS_<SECTION>_<NAME> or by its short name:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - SANDBOX_POOL_SIZE, SANDBOX_TIMEOUT, SANDBOX_ACQUIRE_TIMEOUT,
//     SANDBOX_MAX_CALL_STACK, SANDBOX_CACHE_BYTES, SANDBOX_DOM
//   - CAPTURE_LIMIT, CAPTURE_EVENTS_PER_SECOND, CAPTURE_BURST,
//     CAPTURE_STREAM_BUFFER, CAPTURE_CODEC, CAPTURE_SANITIZE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CORS_ORIGINS (comma separated)
//
// Durations use Go syntax ("250ms", "5s") in every source.
package config
