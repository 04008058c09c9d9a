// Package monitor provides the read-only cluster view: it probes each
// configured machine's status API with independent timeouts and reads stage
// depths from the shared store.
package monitor
