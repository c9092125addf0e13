package types

import "encoding/json"

// Vulnerability is one scanner-reported finding. Fields are unexported so a
// record cannot change after it has been handed to a registry.
type Vulnerability struct {
	id       string
	severity Severity
	label    string
	sourceID string
	payload  json.RawMessage
}

// NewVulnerability builds a record. label is the scanner's raw severity string;
// payload is the full scanner object and is copied.
func NewVulnerability(id, label, sourceID string, payload []byte) Vulnerability {
	return Vulnerability{
		id:       id,
		severity: ParseSeverity(label),
		label:    label,
		sourceID: sourceID,
		payload:  append(json.RawMessage(nil), payload...),
	}
}

// ID returns the vulnerability identifier, e.g. "CVE-2023-1234".
func (v Vulnerability) ID() string { return v.id }

// Severity returns the position on the severity scale.
func (v Vulnerability) Severity() Severity { return v.severity }

// Label returns the severity string exactly as the scanner reported it.
func (v Vulnerability) Label() string { return v.label }

// SourceID identifies the layer the record was reported for.
func (v Vulnerability) SourceID() string { return v.sourceID }

// Payload returns a copy of the scanner's original JSON object.
func (v Vulnerability) Payload() json.RawMessage {
	return append(json.RawMessage(nil), v.payload...)
}
