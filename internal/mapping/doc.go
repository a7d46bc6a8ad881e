// Package mapping resolves the field layout of an unknown carrier export
// into the canonical CDR schema.
//
// Resolution combines three candidate sources, in order of trust: stored
// templates keyed by (carrier, format_type), layout-classifier suggestions,
// and a keyword/pattern heuristic over header names. Every candidate is
// scored by the Scorer, which blends five signals with fixed weights
// (model confidence 0.30, content-pattern match rate 0.25, field-name
// similarity 0.20, template bonus 0.15, historical feedback 0.10) and
// subtracts penalties for uninformative names and type conflicts.
//
// The resolver never fails for unmappable input. A partial mapping set
// plus validation issues and recommendations is a normal outcome; deciding
// whether to demand manual mappings belongs to the caller.
package mapping
