// Package config loads, normalizes, and validates harvest's TOML
// configuration, covering the shared store layout, per-source producer
// settings, backend connections, and daemon timing.
package config
