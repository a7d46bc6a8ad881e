// Package pipeline orchestrates one validation job end to end.
//
// A job moves through a strictly-forward state machine: initialization,
// field_mapping, data_normalization, duplicate_detection,
// database_integration, then completed or failed. Each transition emits a
// progress update to the job-status sink. Stage-level failures (an
// unsatisfiable mapping, a database outage that outlasts its retry budget,
// the job wall-clock timeout) abort the job with no partial write.
// Item-level failures are isolated: a record that cannot be normalized is
// classified and then skipped or dead-lettered, never aborting its batch,
// so len(events) + skipped + dead_lettered always equals the input size
// when duplicate detection is disabled.
//
// Large jobs stream batches through a bounded prefetch queue; small jobs
// fan out across a worker pool. The threshold and all other knobs come
// from types.JobConfig. Collaborators (extraction, layout classification,
// status and event sinks, cache) are injected interfaces so the same
// orchestrator serves the CLI and a task-queue worker unchanged.
package pipeline
