package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// carrierMarkers maps lowercase substrings of filenames and sample values
// to carrier names. First match wins; checked in declaration order.
var carrierMarkers = []struct {
	marker  string
	carrier string
}{
	{"verizon", "verizon"},
	{"vzw", "verizon"},
	{"att", "att"},
	{"at&t", "att"},
	{"tmobile", "tmobile"},
	{"t-mobile", "tmobile"},
	{"sprint", "sprint"},
	{"vodafone", "vodafone"},
	{"orange", "orange"},
}

// HeuristicClassifier infers format from the filename extension and the
// carrier from filename or sample-value markers. It never fails: an
// unrecognized layout returns a low-confidence empty classification and
// the resolver's keyword heuristic takes over.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates the classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify implements LayoutClassifier.
func (c *HeuristicClassifier) Classify(_ context.Context, samples []*types.RawRecord, filename string) (*Classification, error) {
	cls := &Classification{}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		cls.Format = "csv"
	case ".json", ".jsonl", ".ndjson":
		cls.Format = "json"
	case ".tsv":
		cls.Format = "tsv"
	}

	cls.Carrier = findCarrier(strings.ToLower(filename))
	if cls.Carrier == "" {
		for _, rec := range samples {
			for _, f := range rec.Fields() {
				if !strings.Contains(strings.ToLower(f), "carrier") {
					continue
				}
				if carrier := findCarrier(strings.ToLower(rec.GetString(f))); carrier != "" {
					cls.Carrier = carrier
					break
				}
			}
			if cls.Carrier != "" {
				break
			}
		}
	}

	switch {
	case cls.Format != "" && cls.Carrier != "":
		cls.Confidence = 0.8
	case cls.Format != "" || cls.Carrier != "":
		cls.Confidence = 0.5
	default:
		cls.Confidence = 0.1
	}
	return cls, nil
}

func findCarrier(s string) string {
	for _, m := range carrierMarkers {
		if strings.Contains(s, m.marker) {
			return m.carrier
		}
	}
	return ""
}
