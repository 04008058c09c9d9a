// Package notifications delivers push notifications for pipeline milestones
// via ntfy. When no topic is configured the service degrades to a noop, so
// callers never guard their notification calls.
package notifications
