package types

import (
	"fmt"
	"strings"
	"time"
)

// RawRecord is an ordered mapping of source field name to raw value, as
// produced by an extraction adapter. Field order is preserved because
// carrier layouts are positional: the same header name can appear in
// different columns across files, and sample-based mapping resolution
// needs to see fields in their original order.
//
// RawRecord is ephemeral: it is consumed once by the mapping resolver and
// normalizers and never flows past the normalization stage.
type RawRecord struct {
	fields []string
	values map[string]any
}

// NewRawRecord creates an empty record with capacity for n fields.
func NewRawRecord(n int) *RawRecord {
	return &RawRecord{
		fields: make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set stores a value under the given field name, preserving first-insertion
// order. Setting an existing field overwrites the value in place.
func (r *RawRecord) Set(field string, value any) {
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = value
}

// Get returns the value for a field and whether it was present.
func (r *RawRecord) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// GetString returns the field value rendered as a string, or "" if absent.
func (r *RawRecord) GetString(field string) string {
	v, ok := r.values[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Fields returns the field names in insertion order.
func (r *RawRecord) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields in the record.
func (r *RawRecord) Len() int {
	return len(r.fields)
}

// FileMetadata describes the source file a batch of raw records came from.
type FileMetadata struct {
	Filename       string `json:"filename"`
	CarrierHint    string `json:"carrier_hint,omitempty"`
	DetectedFormat string `json:"detected_format,omitempty"`
}

// TargetField names a column of the canonical schema.
type TargetField string

const (
	FieldTimestamp TargetField = "ts"
	FieldNumber    TargetField = "number"
	FieldType      TargetField = "type"
	FieldDirection TargetField = "direction"
	FieldDuration  TargetField = "duration"
	FieldContent   TargetField = "content"
	FieldCarrier   TargetField = "carrier"
	FieldCost      TargetField = "cost"
	FieldLocation  TargetField = "location"
)

// IsValid checks if the target field is part of the canonical schema.
func (f TargetField) IsValid() bool {
	switch f {
	case FieldTimestamp, FieldNumber, FieldType, FieldDirection,
		FieldDuration, FieldContent, FieldCarrier, FieldCost, FieldLocation:
		return true
	}
	return false
}

// RequiredFields are the canonical fields a resolved mapping set must cover
// for a job to proceed past the field_mapping stage.
var RequiredFields = []TargetField{FieldTimestamp, FieldNumber, FieldType, FieldDirection}

// IsRequired reports whether the field must be mapped for a job to proceed.
func (f TargetField) IsRequired() bool {
	for _, r := range RequiredFields {
		if f == r {
			return true
		}
	}
	return false
}

// FieldDataType is the expected value domain of a canonical field.
type FieldDataType string

const (
	DataTypeString   FieldDataType = "string"
	DataTypeDateTime FieldDataType = "datetime"
	DataTypePhone    FieldDataType = "phone"
	DataTypeDuration FieldDataType = "duration"
	DataTypeDecimal  FieldDataType = "decimal"
)

// IsValid checks if the data type value is valid.
func (d FieldDataType) IsValid() bool {
	switch d {
	case DataTypeString, DataTypeDateTime, DataTypePhone, DataTypeDuration, DataTypeDecimal:
		return true
	}
	return false
}

// FieldMapping binds one source field to one canonical target field.
type FieldMapping struct {
	SourceField string        `json:"source_field"`
	TargetField TargetField   `json:"target_field"`
	DataType    FieldDataType `json:"data_type"`
	Confidence  float64       `json:"confidence"`
	IsRequired  bool          `json:"is_required"`
	Reason      string        `json:"reason,omitempty"`
}

// Validate checks if the mapping has valid field values.
func (m *FieldMapping) Validate() error {
	if m.SourceField == "" {
		return fmt.Errorf("source_field is required")
	}
	if !m.TargetField.IsValid() {
		return fmt.Errorf("invalid target field: %s", m.TargetField)
	}
	if !m.DataType.IsValid() {
		return fmt.Errorf("invalid data type: %s", m.DataType)
	}
	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", m.Confidence)
	}
	return nil
}

// EventType categorizes a canonical event.
type EventType string

const (
	EventCall      EventType = "call"
	EventSMS       EventType = "sms"
	EventMMS       EventType = "mms"
	EventData      EventType = "data"
	EventVoicemail EventType = "voicemail"
)

// IsValid checks if the event type value is valid.
func (t EventType) IsValid() bool {
	switch t {
	case EventCall, EventSMS, EventMMS, EventData, EventVoicemail:
		return true
	}
	return false
}

// Direction indicates which party originated the event.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionMissed   Direction = "missed"
)

// IsValid checks if the direction value is valid.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound, DirectionMissed:
		return true
	}
	return false
}

// CanonicalEvent is the normalized, typed output record of the pipeline.
// It is owned by the pipeline for the duration of one job and written once
// to the event sink.
type CanonicalEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Number    string    `json:"number"` // E.164
	Timestamp time.Time `json:"ts"`     // always UTC
	Type      EventType `json:"type"`
	Direction Direction `json:"direction"`
	Duration  int       `json:"duration"` // whole seconds, >= 0
	Content   string    `json:"content,omitempty"`
	Carrier   string    `json:"carrier,omitempty"`

	// Metadata carries normalization provenance (source field, raw value,
	// applied format) keyed by canonical field name.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event has valid field values.
func (e *CanonicalEvent) Validate() error {
	if e.Number == "" {
		return fmt.Errorf("number is required")
	}
	if !strings.HasPrefix(e.Number, "+") {
		return fmt.Errorf("number must be E.164 (got %q)", e.Number)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid event type: %s", e.Type)
	}
	if !e.Direction.IsValid() {
		return fmt.Errorf("invalid direction: %s", e.Direction)
	}
	if e.Duration < 0 {
		return fmt.Errorf("duration cannot be negative (got %d)", e.Duration)
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e *CanonicalEvent) Clone() *CanonicalEvent {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// KeyStrategy names a composite-key derivation strategy.
type KeyStrategy string

const (
	StrategyStandard     KeyStrategy = "standard"
	StrategyTimeBucketed KeyStrategy = "time_bucketed"
	StrategyFuzzy        KeyStrategy = "fuzzy_tolerant"
	StrategyContentBased KeyStrategy = "content_based"
)

// IsValid checks if the key strategy value is valid.
func (s KeyStrategy) IsValid() bool {
	switch s {
	case StrategyStandard, StrategyTimeBucketed, StrategyFuzzy, StrategyContentBased:
		return true
	}
	return false
}

// CompositeKey is a deterministic identity fingerprint for an event under a
// chosen strategy. Identical inputs under the same strategy always yield
// identical keys.
type CompositeKey struct {
	Primary    string            `json:"primary"`
	Secondary  string            `json:"secondary"`
	Full       string            `json:"full"`
	Components map[string]string `json:"components"`
}

// DuplicateGroup is a set of two or more events judged to represent the
// same real-world occurrence.
type DuplicateGroup struct {
	Records    []*CanonicalEvent `json:"records"`
	Similarity float64           `json:"similarity"`
	Stage      string            `json:"stage"` // detection stage that found the group
}

// Validate checks if the group has valid contents.
func (g *DuplicateGroup) Validate() error {
	if len(g.Records) < 2 {
		return fmt.Errorf("duplicate group must contain at least 2 records (got %d)", len(g.Records))
	}
	if g.Similarity < 0.0 || g.Similarity > 1.0 {
		return fmt.Errorf("similarity must be between 0.0 and 1.0 (got %.2f)", g.Similarity)
	}
	return nil
}

// MergeResult is the outcome of collapsing a duplicate group into one record.
type MergeResult struct {
	MergedRecord      *CanonicalEvent   `json:"merged_record"`
	SourceRecords     []*CanonicalEvent `json:"source_records"`
	ConflictsResolved int               `json:"conflicts_resolved"`
	QualityScore      float64           `json:"quality_score"`

	// DataLineage records which source record contributed each resolved
	// field, keyed by canonical field name. Values are source record IDs.
	DataLineage map[string]string `json:"data_lineage"`
}

// ContactSummary aggregates per-number statistics for one job, suitable for
// idempotent bulk upsert alongside the events themselves.
type ContactSummary struct {
	UserID        string    `json:"user_id"`
	Number        string    `json:"number"`
	EventCount    int       `json:"event_count"`
	TotalDuration int       `json:"total_duration"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}
