package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DurationResult is the outcome of normalizing one duration value.
type DurationResult struct {
	// Seconds is the duration as whole seconds, always >= 0.
	Seconds int `json:"seconds"`

	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// NormalizeDuration converts a raw duration value to integer seconds.
// Accepted shapes:
//
//	"01:05:30"  H:MM:SS colon notation
//	"5:30"      MM:SS colon notation
//	"5m", "90s" unit-suffixed, anything time.ParseDuration accepts
//	"90"        bare number, assumed seconds
//
// Negative values are rejected; fractional seconds round to nearest.
func NormalizeDuration(raw string) DurationResult {
	res := DurationResult{}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		res.Errors = append(res.Errors, "empty duration")
		return res
	}

	if strings.Contains(trimmed, ":") {
		return fromColonNotation(trimmed)
	}

	// Bare numbers are seconds. Checked before ParseDuration because a
	// bare "90" is not a valid Go duration string.
	if num, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if num < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("duration cannot be negative: %q", raw))
			return res
		}
		res.Seconds = int(math.Round(num))
		res.IsValid = true
		return res
	}

	if d, err := time.ParseDuration(strings.ToLower(trimmed)); err == nil {
		if d < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("duration cannot be negative: %q", raw))
			return res
		}
		res.Seconds = int(math.Round(d.Seconds()))
		res.IsValid = true
		return res
	}

	res.Errors = append(res.Errors, fmt.Sprintf("unrecognized duration format: %q", raw))
	return res
}

// fromColonNotation parses H:MM:SS or MM:SS strings.
func fromColonNotation(value string) DurationResult {
	res := DurationResult{}

	parts := strings.Split(value, ":")
	if len(parts) != 2 && len(parts) != 3 {
		res.Errors = append(res.Errors, fmt.Sprintf("expected MM:SS or H:MM:SS, got %q", value))
		return res
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("invalid duration component %q in %q", p, value))
			return res
		}
		nums[i] = n
	}

	if len(nums) == 2 {
		res.Seconds = nums[0]*60 + nums[1]
	} else {
		res.Seconds = nums[0]*3600 + nums[1]*60 + nums[2]
	}
	res.IsValid = true
	return res
}
