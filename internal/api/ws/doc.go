/*
Package ws streams console events over WebSocket.

A client connects to /stream, optionally choosing a frame codec with
?codec=msgpack+zstd, and sends run messages:

	{"type": "run", "script": "console.log(1)", "limit": 50}

Each captured event arrives as {"type": "event", "event": {...}} while the
script runs, followed by {"type": "complete", "result": {...}}. Text
frames from the client are always read as JSON.
*/
package ws
