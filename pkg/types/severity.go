package types

import "strings"

// Severity is a position on the scanner's severity scale. The zero value is
// SeverityNone, which never appears on a record and marks "no findings".
type Severity int

const (
	SeverityNone Severity = iota
	// SeverityUnknown is also where unrecognized scanner labels land, so an
	// unexpected label never escalates risk on its own.
	SeverityUnknown
	SeverityNegligible
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
	SeverityDefcon1
)

// DefaultCeiling is the highest severity tolerated when no policy says otherwise.
const DefaultCeiling = SeverityMedium

var severityLabels = map[Severity]string{
	SeverityNone:       "None",
	SeverityUnknown:    "Unknown",
	SeverityNegligible: "Negligible",
	SeverityLow:        "Low",
	SeverityMedium:     "Medium",
	SeverityHigh:       "High",
	SeverityCritical:   "Critical",
	SeverityDefcon1:    "Defcon1",
}

// Severities returns the scale from lowest to highest, excluding SeverityNone.
func Severities() []Severity {
	return []Severity{
		SeverityUnknown,
		SeverityNegligible,
		SeverityLow,
		SeverityMedium,
		SeverityHigh,
		SeverityCritical,
		SeverityDefcon1,
	}
}

func (s Severity) String() string {
	if label, ok := severityLabels[s]; ok {
		return label
	}
	return severityLabels[SeverityUnknown]
}

// ParseSeverity maps a scanner label onto the scale. Matching ignores case and
// surrounding whitespace. Anything unrecognized, including the empty string,
// maps to SeverityUnknown.
func ParseSeverity(label string) Severity {
	sev, ok := LookupSeverity(label)
	if !ok {
		return SeverityUnknown
	}
	return sev
}

// LookupSeverity is like ParseSeverity but reports whether the label was
// recognized. Used where a typo should be an error rather than a silent Unknown.
func LookupSeverity(label string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "unknown":
		return SeverityUnknown, true
	case "negligible":
		return SeverityNegligible, true
	case "low":
		return SeverityLow, true
	case "medium", "moderate":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	case "defcon1", "maximumseverity":
		return SeverityDefcon1, true
	default:
		return SeverityUnknown, false
	}
}
