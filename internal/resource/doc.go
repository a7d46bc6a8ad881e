// Package resource bounds pipeline execution: a memory monitor with GC and
// emergency thresholds, a two-tier compressing cache, and two batch
// execution strategies (bounded-concurrency streaming for large inputs, a
// fixed worker pool for small ones) selected deterministically by item
// count.
package resource
