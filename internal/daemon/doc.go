// Package daemon hosts the long-running harvest process: it enforces
// single-instance execution, runs the workflow lanes, and serves the control
// API with bearer-token auth, Prometheus metrics, and a websocket event
// stream.
package daemon
