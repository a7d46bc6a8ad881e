package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func writeExtract(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractCSV(t *testing.T) {
	path := writeExtract(t, "calls.csv",
		"phone,when,kind\n5551234567,2024-01-15T10:00:00Z,call\n5559876543,2024-01-15T11:00:00Z,sms\n")

	records, meta, err := NewFileExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "csv", meta.DetectedFormat)
	assert.Equal(t, "calls.csv", meta.Filename)
	require.Len(t, records, 2)
	assert.Equal(t, "5551234567", records[0].GetString("phone"))
	assert.Equal(t, "sms", records[1].GetString("kind"))
	assert.Equal(t, []string{"phone", "when", "kind"}, records[0].Fields())
}

func TestExtractCSVEmptyFile(t *testing.T) {
	path := writeExtract(t, "empty.csv", "")
	records, _, err := NewFileExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractJSONArray(t *testing.T) {
	path := writeExtract(t, "calls.json",
		`[{"phone":"5551234567","kind":"call"},{"phone":"5559876543","kind":"sms"}]`)

	records, meta, err := NewFileExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "json", meta.DetectedFormat)
	require.Len(t, records, 2)
	assert.Equal(t, "call", records[0].GetString("kind"))
}

func TestExtractJSONLines(t *testing.T) {
	path := writeExtract(t, "calls.jsonl",
		"{\"phone\":\"5551234567\"}\n{\"phone\":\"5559876543\"}\n")

	records, _, err := NewFileExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "5559876543", records[1].GetString("phone"))
}

func TestExtractUnsupportedFormat(t *testing.T) {
	path := writeExtract(t, "calls.xlsx", "binary")
	_, _, err := NewFileExtractor().Extract(context.Background(), path)
	require.Error(t, err)
}

func TestExtractMissingFile(t *testing.T) {
	_, _, err := NewFileExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestClassifyHeuristics(t *testing.T) {
	c := NewHeuristicClassifier()

	cls, err := c.Classify(context.Background(), nil, "verizon_jan_2024.csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", cls.Format)
	assert.Equal(t, "verizon", cls.Carrier)
	assert.Equal(t, 0.8, cls.Confidence)

	cls, err = c.Classify(context.Background(), nil, "export.json")
	require.NoError(t, err)
	assert.Equal(t, "json", cls.Format)
	assert.Empty(t, cls.Carrier)
	assert.Equal(t, 0.5, cls.Confidence)

	cls, err = c.Classify(context.Background(), nil, "mystery.dat")
	require.NoError(t, err)
	assert.Equal(t, 0.1, cls.Confidence)
}

func TestClassifyCarrierFromSamples(t *testing.T) {
	rec := testRecord("5551234567", "2024-01-15T10:00:00Z", "call", "out", "60", "")
	rec.Set("carrier_name", "T-Mobile USA")

	cls, err := NewHeuristicClassifier().Classify(context.Background(), []*types.RawRecord{rec}, "export.csv")
	require.NoError(t, err)
	assert.Equal(t, "tmobile", cls.Carrier)
}
