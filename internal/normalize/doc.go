// Package normalize provides pure, stateless value converters for the four
// domains a call-detail record can carry: phone numbers, timestamps, call
// durations, and message content.
//
// # Contract
//
// Every normalizer returns a typed result plus IsValid and a list of
// validation-error strings. Malformed input is a normal outcome, not a
// fault: no normalizer ever returns a Go error for bad data, so callers can
// treat the result uniformly and decide skip/dead-letter policy themselves.
//
// # Dependency injection
//
// Lookup tables (default region, carrier prefixes, PII patterns) are
// constructed once per process and injected through each normalizer's
// config. There is no ambient global state, which keeps the converters
// deterministic and safe for concurrent use.
//
// # Format priority
//
// The datetime normalizer tries formats in a fixed, documented order:
// ISO-8601, then US date formats, then EU date formats, then bare dates,
// then time-only values. The first successful parse wins. This ordering is
// a testable contract; changing it changes which of an ambiguous row's
// interpretations is chosen.
package normalize
