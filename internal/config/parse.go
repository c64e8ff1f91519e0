package config

import (
	"math"
	"strconv"
	"strings"
)

// IntInRange parses raw as an integer. Empty, non-numeric and out-of-range
// input yields def.
func IntInRange(raw string, def, min, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Accept "6.0" style values written by YAML tooling.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return def
		}
		n = int(f)
	}
	if n < min || n > max {
		return def
	}
	return n
}

// FloatInRange is IntInRange for floating point values.
func FloatInRange(raw string, def, min, max float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || f < min || f > max {
		return def
	}
	return f
}

func BoolOr(raw string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

// List splits comma separated values, lower-cases them and drops blanks.
func List(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
