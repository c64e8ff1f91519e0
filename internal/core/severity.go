package core

import (
	"encoding/json"
	"fmt"
)

// Severity is a totally ordered health level: healthy < warning < critical.
type Severity int

const (
	SeverityHealthy Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "healthy"
	}
}

// ParseSeverity accepts the string form produced by String.
func ParseSeverity(v string) (Severity, error) {
	switch v {
	case "healthy", "":
		return SeverityHealthy, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityHealthy, fmt.Errorf("unknown severity %q", v)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseSeverity(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MaxSeverity joins severities on the lattice. A later check can raise the
// result but never lower it, so the order in which checks run is irrelevant.
func MaxSeverity(levels ...Severity) Severity {
	out := SeverityHealthy
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// Signal is the judgement computed for one entity at one point in time.
type Signal struct {
	Severity Severity `json:"severity"`
	Reasons  []string `json:"reasons"`
	Score    *int     `json:"score,omitempty"`
	AgeHours *float64 `json:"age_hours,omitempty"`
}

// Raise records a reason and lifts the signal severity to at least level.
func (s *Signal) Raise(level Severity, reason string) {
	s.Severity = MaxSeverity(s.Severity, level)
	if reason != "" {
		s.Reasons = append(s.Reasons, reason)
	}
}

func (s Signal) Healthy() bool {
	return s.Severity == SeverityHealthy
}
