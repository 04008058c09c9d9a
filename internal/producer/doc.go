// Package producer drives content sources through discovery and download.
// Each source keeps a manifest of everything it has ever seen; downloads land
// as raw JSON records for the processor to consume. Runs are resumable:
// interruptions lose at most the in-flight item.
package producer
