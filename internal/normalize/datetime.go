package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeResult is the outcome of normalizing one timestamp value.
type DateTimeResult struct {
	// UTC is the parsed instant converted to UTC.
	UTC time.Time `json:"-"`

	// ISO8601 is UTC rendered as "2006-01-02T15:04:05+00:00".
	ISO8601 string `json:"iso8601"`

	// UnixMS is the millisecond-precision Unix timestamp.
	UnixMS int64 `json:"unix_ms"`

	// Format names the parse path that succeeded (iso, us, eu, date,
	// time_only, unix_s, unix_ms). Recorded into event provenance.
	Format string `json:"format,omitempty"`

	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// DateTimeConfig holds the injected settings for timestamp normalization.
type DateTimeConfig struct {
	// AssumeLocation is applied to values that carry no explicit zone.
	// Default: UTC.
	AssumeLocation *time.Location

	// ZoneAbbreviations maps trailing zone abbreviations to fixed UTC
	// offsets in seconds. DefaultDateTimeConfig covers the common North
	// American zones.
	ZoneAbbreviations map[string]int
}

// DefaultDateTimeConfig returns the default timestamp config.
func DefaultDateTimeConfig() DateTimeConfig {
	return DateTimeConfig{
		AssumeLocation: time.UTC,
		ZoneAbbreviations: map[string]int{
			"UTC": 0, "GMT": 0,
			"EST": -5 * 3600, "EDT": -4 * 3600,
			"CST": -6 * 3600, "CDT": -5 * 3600,
			"MST": -7 * 3600, "MDT": -6 * 3600,
			"PST": -8 * 3600, "PDT": -7 * 3600,
		},
	}
}

// DateTimeNormalizer converts raw timestamp strings to UTC. Safe for
// concurrent use.
type DateTimeNormalizer struct {
	cfg DateTimeConfig
}

// NewDateTimeNormalizer creates a normalizer with the given config.
func NewDateTimeNormalizer(cfg DateTimeConfig) *DateTimeNormalizer {
	if cfg.AssumeLocation == nil {
		cfg.AssumeLocation = time.UTC
	}
	return &DateTimeNormalizer{cfg: cfg}
}

// Format groups tried in fixed priority order. Within a group the layouts
// are tried top to bottom; the first successful parse wins. Ambiguous
// values (e.g. "03/04/2024") therefore resolve as US month-first, which is
// the documented contract.
var formatLadder = []struct {
	name    string
	layouts []string
}{
	{"iso", []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999",
	}},
	{"us", []string{
		"01/02/2006 15:04:05",
		"01/02/2006 3:04:05 PM",
		"01/02/2006 3:04 PM",
		"01/02/2006 15:04",
		"01-02-2006 15:04:05",
	}},
	{"eu", []string{
		"02.01.2006 15:04:05",
		"02.01.2006 15:04",
		"02/01/2006 15:04:05",
	}},
	{"date", []string{
		"2006-01-02",
		"01/02/2006",
		"02.01.2006",
		"Jan 2, 2006",
	}},
	{"time_only", []string{
		"15:04:05",
		"3:04:05 PM",
		"15:04",
	}},
}

// Normalize parses a raw timestamp string and converts it to UTC. Numeric
// input is treated as a Unix timestamp, detected as milliseconds when the
// magnitude is 1e12 or larger and seconds when 1e9 or larger.
func (n *DateTimeNormalizer) Normalize(raw string) DateTimeResult {
	res := DateTimeResult{}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		res.Errors = append(res.Errors, "empty timestamp")
		return res
	}

	if num, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n.fromUnix(num)
	}

	value, loc, zoneNote := n.extractZone(trimmed)

	for _, group := range formatLadder {
		for _, layout := range group.layouts {
			t, err := time.ParseInLocation(layout, value, loc)
			if err != nil {
				continue
			}
			if group.name == "time_only" {
				// No date component; anchor to the Unix epoch date so the
				// result stays deterministic.
				t = time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), 0, loc)
				res.Errors = append(res.Errors, "no date component, anchored to 1970-01-01")
			}
			res.UTC = t.UTC()
			res.ISO8601 = formatISO(res.UTC)
			res.UnixMS = res.UTC.UnixMilli()
			res.Format = group.name
			res.IsValid = true
			if zoneNote != "" {
				res.Errors = append(res.Errors, zoneNote)
			}
			return res
		}
	}

	res.Errors = append(res.Errors, fmt.Sprintf("unrecognized timestamp format: %q", raw))
	return res
}

// fromUnix interprets a numeric value as a Unix timestamp by magnitude.
func (n *DateTimeNormalizer) fromUnix(num float64) DateTimeResult {
	res := DateTimeResult{}
	switch {
	case num >= 1e12:
		res.UTC = time.UnixMilli(int64(num)).UTC()
		res.Format = "unix_ms"
	case num >= 1e9:
		res.UTC = time.Unix(int64(num), 0).UTC()
		res.Format = "unix_s"
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("numeric value %g too small for a Unix timestamp", num))
		return res
	}
	res.ISO8601 = formatISO(res.UTC)
	res.UnixMS = res.UTC.UnixMilli()
	res.IsValid = true
	return res
}

// extractZone strips a trailing zone abbreviation (e.g. "EST") and returns
// the remaining value plus the location to parse in. Values with an
// embedded numeric offset keep it; everything else parses in the configured
// assumed location.
func (n *DateTimeNormalizer) extractZone(value string) (string, *time.Location, string) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return value, n.cfg.AssumeLocation, ""
	}

	last := strings.ToUpper(fields[len(fields)-1])
	if offset, ok := n.cfg.ZoneAbbreviations[last]; ok {
		rest := strings.Join(fields[:len(fields)-1], " ")
		loc := time.FixedZone(last, offset)
		return rest, loc, fmt.Sprintf("applied zone abbreviation %s", last)
	}
	return value, n.cfg.AssumeLocation, ""
}

// formatISO renders a UTC instant with an explicit +00:00 offset.
func formatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05+00:00")
}
