package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func testMappings() map[types.TargetField]*types.FieldMapping {
	return map[types.TargetField]*types.FieldMapping{
		types.FieldNumber:    {SourceField: "phone", TargetField: types.FieldNumber, DataType: types.DataTypePhone, Confidence: 1, IsRequired: true},
		types.FieldTimestamp: {SourceField: "when", TargetField: types.FieldTimestamp, DataType: types.DataTypeDateTime, Confidence: 1, IsRequired: true},
		types.FieldType:      {SourceField: "kind", TargetField: types.FieldType, DataType: types.DataTypeString, Confidence: 1, IsRequired: true},
		types.FieldDirection: {SourceField: "dir", TargetField: types.FieldDirection, DataType: types.DataTypeString, Confidence: 1, IsRequired: true},
		types.FieldDuration:  {SourceField: "secs", TargetField: types.FieldDuration, DataType: types.DataTypeDuration, Confidence: 1},
		types.FieldContent:   {SourceField: "msg", TargetField: types.FieldContent, DataType: types.DataTypeString, Confidence: 1},
	}
}

func testRecord(phone, when, kind, dir, secs, msg string) *types.RawRecord {
	rec := types.NewRawRecord(6)
	rec.Set("phone", phone)
	rec.Set("when", when)
	rec.Set("kind", kind)
	rec.Set("dir", dir)
	rec.Set("secs", secs)
	rec.Set("msg", msg)
	return rec
}

func TestNormalizeFullRecord(t *testing.T) {
	n := NewRecordNormalizer("US")

	ev, note, verr := n.Normalize(
		testRecord("(555) 123-4567", "01/15/2024 14:30:00", "call", "outbound", "5:30", ""),
		testMappings(), "user-1", "row-0")
	require.Nil(t, verr)
	require.NotNil(t, ev)

	assert.Equal(t, "+15551234567", ev.Number)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, types.EventCall, ev.Type)
	assert.Equal(t, types.DirectionOutbound, ev.Direction)
	assert.Equal(t, 330, ev.Duration)
	assert.Equal(t, "user-1", ev.UserID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "phone", ev.Metadata["number_source"])
	assert.Equal(t, "when", ev.Metadata["ts_source"])
	assert.False(t, note.UsedPhoneFallback)
}

func TestNormalizeTypeAndDirectionAliases(t *testing.T) {
	n := NewRecordNormalizer("US")

	tests := []struct {
		kind, dir string
		wantType  types.EventType
		wantDir   types.Direction
	}{
		{"CALL", "Outgoing", types.EventCall, types.DirectionOutbound},
		{"text", "received", types.EventSMS, types.DirectionInbound},
		{"voice", "missed", types.EventCall, types.DirectionMissed},
		{"picture", "sent", types.EventMMS, types.DirectionOutbound},
		{"vm", "in", types.EventVoicemail, types.DirectionInbound},
	}
	for _, tt := range tests {
		ev, _, verr := n.Normalize(
			testRecord("5551234567", "2024-01-15T10:00:00Z", tt.kind, tt.dir, "60", ""),
			testMappings(), "user-1", "row-0")
		require.Nil(t, verr, "kind=%s dir=%s", tt.kind, tt.dir)
		assert.Equal(t, tt.wantType, ev.Type)
		assert.Equal(t, tt.wantDir, ev.Direction)
	}
}

func TestNormalizeRequiredFieldFailures(t *testing.T) {
	n := NewRecordNormalizer("US")

	tests := []struct {
		name string
		rec  *types.RawRecord
	}{
		{"bad number", testRecord("garbage", "2024-01-15T10:00:00Z", "call", "out", "60", "")},
		{"bad timestamp", testRecord("5551234567", "not a date", "call", "out", "60", "")},
		{"bad type", testRecord("5551234567", "2024-01-15T10:00:00Z", "???", "out", "60", "")},
		{"bad direction", testRecord("5551234567", "2024-01-15T10:00:00Z", "call", "sideways", "60", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _, verr := n.Normalize(tt.rec, testMappings(), "user-1", "row-7")
			assert.Nil(t, ev)
			require.NotNil(t, verr)
			assert.Equal(t, types.CategoryDataQuality, verr.Category)
			assert.Equal(t, types.RecoverySkip, verr.RecoveryStrategy)
			assert.Equal(t, "row-7", verr.Context.ItemID)
		})
	}
}

func TestNormalizeOptionalFieldsDegrade(t *testing.T) {
	n := NewRecordNormalizer("US")

	// Unparseable duration is dropped to zero, not a skip.
	ev, _, verr := n.Normalize(
		testRecord("5551234567", "2024-01-15T10:00:00Z", "call", "inbound", "forever", ""),
		testMappings(), "user-1", "row-0")
	require.Nil(t, verr)
	assert.Equal(t, 0, ev.Duration)
}

func TestNormalizeContentRedaction(t *testing.T) {
	n := NewRecordNormalizer("US")

	ev, note, verr := n.Normalize(
		testRecord("5551234567", "2024-01-15T10:00:00Z", "sms", "inbound", "",
			"my ssn is 123-45-6789"),
		testMappings(), "user-1", "row-0")
	require.Nil(t, verr)
	assert.NotContains(t, ev.Content, "123-45-6789")
	assert.Equal(t, 1, note.PIIRedactions)
}

func TestNormalizeUnmappedOptionalFields(t *testing.T) {
	n := NewRecordNormalizer("US")

	mappings := testMappings()
	delete(mappings, types.FieldDuration)
	delete(mappings, types.FieldContent)

	ev, _, verr := n.Normalize(
		testRecord("5551234567", "2024-01-15T10:00:00Z", "call", "outbound", "999", "hello"),
		mappings, "user-1", "row-0")
	require.Nil(t, verr)
	assert.Equal(t, 0, ev.Duration)
	assert.Empty(t, ev.Content)
}
