// Package queue persists harvest jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema migrations, stats queries,
// heartbeat tracking, stale-lease reclamation, and status transitions. Jobs
// are partitioned by kind (transcription, indexing) and every kind shares the
// same lifecycle: pending, processing, completed, failed. Claims are
// compare-and-swap updates so concurrent workers on different machines never
// receive the same job.
//
// The database lives alongside the catalog under the data directory. Schema
// changes are applied through embedded migration files recorded in
// schema_migrations.
package queue
