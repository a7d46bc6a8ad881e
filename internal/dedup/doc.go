// Package dedup detects and merges duplicate canonical events.
//
// Detection runs as a ladder of four stages, each consuming the survivors
// of the previous one so the working set only shrinks:
//
//  1. exact: identical standard composite keys
//  2. time_bucketed: identical identity fields within a tolerance window
//  3. fuzzy: weighted multi-field similarity above a threshold, within
//     blocks that share a number suffix
//  4. semantic: near-identical content sharing a keyword fingerprint
//
// The fast strategy runs stages 1-2; comprehensive runs all four. Groups
// are collapsed by a per-field conflict resolver (oldest timestamp, most
// complete number, longest duration and content, ranked type and
// direction), and every merge records which source contributed each
// resolved field.
//
// All keying, matching, and merging is deterministic: the same input in
// the same order always yields the same survivors, and re-running
// detection over its own output is a no-op.
package dedup
