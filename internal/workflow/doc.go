// Package workflow orchestrates the daemon's background lanes. Each lane is
// a goroutine owned by the Manager: transcription claims jobs from the
// queue, processing sweeps raw records into ready packages, import catalogs
// ready packages and drains the index queue, and the reclaimer releases
// leases held by dead workers.
package workflow
