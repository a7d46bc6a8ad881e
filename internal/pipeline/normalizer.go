package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tollgrid/cdrpipe/internal/normalize"
	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/types"
)

// eventTypeAliases maps raw type values to the canonical event types.
// Matched case-insensitively after trimming.
var eventTypeAliases = map[string]types.EventType{
	"call": types.EventCall, "voice": types.EventCall, "phone": types.EventCall,
	"sms": types.EventSMS, "text": types.EventSMS, "message": types.EventSMS, "txt": types.EventSMS,
	"mms": types.EventMMS, "picture": types.EventMMS, "media": types.EventMMS,
	"data": types.EventData, "internet": types.EventData,
	"voicemail": types.EventVoicemail, "vm": types.EventVoicemail, "vmail": types.EventVoicemail,
}

// directionAliases maps raw direction values to the canonical directions.
var directionAliases = map[string]types.Direction{
	"outbound": types.DirectionOutbound, "out": types.DirectionOutbound,
	"outgoing": types.DirectionOutbound, "sent": types.DirectionOutbound,
	"originated": types.DirectionOutbound,
	"inbound":    types.DirectionInbound, "in": types.DirectionInbound,
	"incoming": types.DirectionInbound, "received": types.DirectionInbound,
	"terminated": types.DirectionInbound,
	"missed":     types.DirectionMissed, "missed call": types.DirectionMissed,
}

// Note carries per-record side observations back to the stage statistics.
type Note struct {
	UsedPhoneFallback bool
	PIIRedactions     int
}

// RecordNormalizer converts one mapped raw record into a CanonicalEvent.
// All field normalizers are injected so carrier tables and region defaults
// are constructed once per job, not held as globals. Safe for concurrent
// use.
type RecordNormalizer struct {
	phone    *normalize.PhoneNormalizer
	datetime *normalize.DateTimeNormalizer
	content  *normalize.ContentNormalizer
}

// NewRecordNormalizer builds a record normalizer for one job's config.
func NewRecordNormalizer(region string) *RecordNormalizer {
	phoneCfg := normalize.DefaultPhoneConfig()
	if region != "" {
		phoneCfg.DefaultRegion = region
	}
	return &RecordNormalizer{
		phone:    normalize.NewPhoneNormalizer(phoneCfg),
		datetime: normalize.NewDateTimeNormalizer(normalize.DefaultDateTimeConfig()),
		content:  normalize.NewContentNormalizer(normalize.DefaultContentConfig()),
	}
}

// Normalize converts rec into a CanonicalEvent using the resolved mapping
// set. A failure on any required field returns a classified data-quality
// error; optional fields degrade to their zero value instead. The returned
// error is nil exactly when the event is usable.
func (n *RecordNormalizer) Normalize(rec *types.RawRecord, byTarget map[types.TargetField]*types.FieldMapping, userID, itemID string) (*types.CanonicalEvent, Note, *types.ValidationError) {
	var note Note

	// A record with no fields at all is structural corruption, not a bad
	// value; it parks in the DLQ for operator review instead of skipping.
	if rec.Len() == 0 {
		return nil, note, corruptRecordError(itemID)
	}

	raw := func(f types.TargetField) (string, string) {
		m, ok := byTarget[f]
		if !ok {
			return "", ""
		}
		return rec.GetString(m.SourceField), m.SourceField
	}

	ev := &types.CanonicalEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		Metadata: map[string]string{},
	}

	rawNumber, numberSrc := raw(types.FieldNumber)
	pr := n.phone.Normalize(rawNumber)
	if !pr.IsValid {
		return nil, note, dataQualityError(
			fmt.Sprintf("number %q: %s", rawNumber, strings.Join(pr.Errors, "; ")), itemID)
	}
	ev.Number = pr.E164
	ev.Metadata["number_source"] = numberSrc
	if pr.UsedFallback {
		note.UsedPhoneFallback = true
		ev.Metadata["number_fallback"] = "digit_count"
	}

	rawTS, tsSrc := raw(types.FieldTimestamp)
	dt := n.datetime.Normalize(rawTS)
	if !dt.IsValid {
		return nil, note, dataQualityError(
			fmt.Sprintf("ts %q: %s", rawTS, strings.Join(dt.Errors, "; ")), itemID)
	}
	ev.Timestamp = dt.UTC
	ev.Metadata["ts_source"] = tsSrc
	ev.Metadata["ts_format"] = dt.Format

	rawType, _ := raw(types.FieldType)
	et, ok := eventTypeAliases[strings.ToLower(strings.TrimSpace(rawType))]
	if !ok {
		return nil, note, dataQualityError(fmt.Sprintf("unrecognized event type %q", rawType), itemID)
	}
	ev.Type = et

	rawDir, _ := raw(types.FieldDirection)
	dir, ok := directionAliases[strings.ToLower(strings.TrimSpace(rawDir))]
	if !ok {
		return nil, note, dataQualityError(fmt.Sprintf("unrecognized direction %q", rawDir), itemID)
	}
	ev.Direction = dir

	// Optional fields from here down: bad values degrade, never skip.
	if rawDur, src := raw(types.FieldDuration); rawDur != "" {
		dr := normalize.NormalizeDuration(rawDur)
		if dr.IsValid {
			ev.Duration = dr.Seconds
			ev.Metadata["duration_source"] = src
		}
	}

	if rawContent, src := raw(types.FieldContent); rawContent != "" {
		cr := n.content.Normalize(rawContent)
		ev.Content = cr.Sanitized
		ev.Metadata["content_source"] = src
		note.PIIRedactions = len(cr.PIIFound)
	}

	if rawCarrier, src := raw(types.FieldCarrier); rawCarrier != "" {
		ev.Carrier = strings.TrimSpace(rawCarrier)
		ev.Metadata["carrier_source"] = src
	} else if pr.Carrier != "" {
		ev.Carrier = pr.Carrier
		ev.Metadata["carrier_source"] = "number_prefix"
	}

	if err := ev.Validate(); err != nil {
		return nil, note, dataQualityError(err.Error(), itemID)
	}
	return ev, note, nil
}

// corruptRecordError pre-classifies a structurally unusable record under
// the unknown-category policy, whose strategy is dead_letter.
func corruptRecordError(itemID string) *types.ValidationError {
	policy := recovery.PolicyFor(types.CategoryUnknown)
	return &types.ValidationError{
		ErrorID:          uuid.NewString(),
		Category:         types.CategoryUnknown,
		Severity:         policy.Severity,
		Message:          "record has no fields",
		Context:          types.ErrorContext{ItemID: itemID},
		RecoveryStrategy: policy.Strategy,
		RetryAfter:       policy.BaseDelay,
		MaxRetries:       policy.MaxRetries,
	}
}

// dataQualityError builds a pre-classified per-item failure so it flows
// through the retry manager and DLQ with the data_quality policy attached.
func dataQualityError(msg, itemID string) *types.ValidationError {
	policy := recovery.PolicyFor(types.CategoryDataQuality)
	return &types.ValidationError{
		ErrorID:          uuid.NewString(),
		Category:         types.CategoryDataQuality,
		Severity:         policy.Severity,
		Message:          msg,
		Context:          types.ErrorContext{ItemID: itemID},
		RecoveryStrategy: policy.Strategy,
		RetryAfter:       policy.BaseDelay,
		MaxRetries:       policy.MaxRetries,
	}
}
