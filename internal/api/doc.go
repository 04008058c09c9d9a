// Package api defines the JSON payloads exchanged between the daemon, the
// CLI, and the cluster monitor, along with conversion helpers from internal
// types. Handlers and clients share these types so the wire format has one
// source of truth.
package api
