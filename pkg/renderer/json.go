package renderer

import (
	"encoding/json"

	"github.com/northcutted/vuln-gate/pkg/policy"
	"github.com/northcutted/vuln-gate/pkg/registry"
)

type jsonCount struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

type jsonVulnerability struct {
	ID          string          `json:"id"`
	Severity    string          `json:"severity"`
	Label       string          `json:"label,omitempty"`
	Layer       string          `json:"layer"`
	Whitelisted bool            `json:"whitelisted,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

type jsonReport struct {
	Verdict         string              `json:"verdict"`
	Reason          string              `json:"reason,omitempty"`
	Ceiling         string              `json:"ceiling"`
	Highest         string              `json:"highest"`
	Counts          []jsonCount         `json:"counts"`
	Vulnerabilities []jsonVulnerability `json:"vulnerabilities"`
}

// RenderJSON produces a machine-readable report with the verdict, ordered the
// same way as Render.
func RenderJSON(reg *registry.Registry, p policy.Policy, verdict policy.Verdict) (string, error) {
	report := jsonReport{
		Verdict:         "pass",
		Reason:          verdict.Reason,
		Ceiling:         verdict.Ceiling.String(),
		Highest:         verdict.Highest.String(),
		Counts:          make([]jsonCount, 0),
		Vulnerabilities: make([]jsonVulnerability, 0),
	}
	if !verdict.Pass {
		report.Verdict = "fail"
	}

	for _, c := range reg.Counts() {
		report.Counts = append(report.Counts, jsonCount{Severity: c.Severity.String(), Count: c.Count})
	}
	for v := range reg.All() {
		payload := v.Payload()
		if !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		// The scanner's own wording is kept when it differs from the scale name.
		var label string
		if v.Label() != v.Severity().String() {
			label = v.Label()
		}
		report.Vulnerabilities = append(report.Vulnerabilities, jsonVulnerability{
			ID:          v.ID(),
			Severity:    v.Severity().String(),
			Label:       label,
			Layer:       v.SourceID(),
			Whitelisted: p.IsWhitelisted(v.ID()),
			Payload:     payload,
		})
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}
