// Package http exposes exports over HTTP.
//
// Routes:
//
//	GET  /exports              list the configured exports
//	GET  /exports/{name}       run a configured export (?mode=, ?compression=)
//	POST /export               run an ad-hoc export (only when enabled)
//	GET  /healthz              liveness, with a database ping for native sources
//	GET  /metrics              Prometheus metrics
//
// Errors are rendered as JSON only while the response is uncommitted.
// Once the first body byte of an export is sent, failures can only
// truncate the body and are logged.
package http
