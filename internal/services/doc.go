// Package services provides shared plumbing for pipeline workers: the error
// taxonomy used to separate transient infrastructure failures from per-item
// content failures, and context carriers for job, stage, and source metadata.
package services
