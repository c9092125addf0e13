// Package renderer turns an assessed registry into a deterministic report.
package renderer

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/northcutted/vuln-gate/pkg/policy"
	"github.com/northcutted/vuln-gate/pkg/registry"
)

// Separator frames each vulnerability entry in the text report.
var Separator = strings.Repeat("-", 50)

// RenderOptions adjusts the text report.
type RenderOptions struct {
	// Framed adds a separator line before the counts and after the last entry.
	Framed bool
	// Policy, when set, marks whitelisted identifiers.
	Policy *policy.Policy
}

// entry is one vulnerability as the template sees it.
type entry struct {
	ID          string
	Whitelisted bool
	Payload     string
}

// reportContext holds all data passed to the template.
type reportContext struct {
	Framed          bool
	Counts          []registry.SeverityCount
	Vulnerabilities []entry
}

const textTemplate = `
{{- if .Framed }}{{ separator }}
{{ end }}
{{- range .Counts }}{{ .Severity }} - {{ .Count }}
{{ end }}
{{- range .Vulnerabilities }}{{ separator }}
{{ .ID }}{{ if .Whitelisted }} (whitelisted){{ end }}
{{ .Payload }}
{{ end }}
{{- if .Framed }}{{ separator }}
{{ end }}`

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"separator": func() string { return Separator },
}).Parse(textTemplate))

// Render produces the text report: one "<severity> - <count>" line per
// severity present in scale order, then each vulnerability in first-seen
// order with its indented scanner payload. An empty registry renders nothing
// but the optional frame.
func Render(reg *registry.Registry, opts RenderOptions) (string, error) {
	ctx := reportContext{
		Framed: opts.Framed,
		Counts: reg.Counts(),
	}
	for v := range reg.All() {
		ctx.Vulnerabilities = append(ctx.Vulnerabilities, entry{
			ID:          v.ID(),
			Whitelisted: opts.Policy != nil && opts.Policy.IsWhitelisted(v.ID()),
			Payload:     indentPayload(v.Payload()),
		})
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// indentPayload pretty-prints the scanner object, preserving its key order.
func indentPayload(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
