// Package policy decides whether aggregated findings pass the CI gate.
package policy

import (
	"fmt"

	"github.com/northcutted/vuln-gate/pkg/registry"
	"github.com/northcutted/vuln-gate/pkg/types"
)

// Policy is the acceptance rule for one run.
type Policy struct {
	// Ceiling is the highest severity tolerated without failing the gate.
	Ceiling types.Severity
	// Whitelisted maps exempted identifiers to their rationale.
	Whitelisted map[string]string
}

// Default returns the policy used when no whitelist is given.
func Default() Policy {
	return Policy{Ceiling: types.DefaultCeiling}
}

// New builds a policy from a whitelist. fallback is the ceiling applied when the
// whitelist does not set one; a nil whitelist yields just the fallback.
func New(wl *Whitelist, fallback types.Severity) (Policy, error) {
	p := Policy{Ceiling: fallback}
	if wl == nil {
		return p, nil
	}
	ceiling, err := wl.Ceiling(fallback)
	if err != nil {
		return p, err
	}
	p.Ceiling = ceiling
	if len(wl.Vulnerabilities) > 0 {
		p.Whitelisted = make(map[string]string, len(wl.Vulnerabilities))
		for _, entry := range wl.Vulnerabilities {
			p.Whitelisted[entry.CVEID] = entry.Rationale
		}
	}
	return p, nil
}

// Load reads the whitelist at path into a policy. An empty path yields the
// fallback ceiling with no exemptions.
func Load(path string, fallback types.Severity) (Policy, error) {
	if path == "" {
		return New(nil, fallback)
	}
	wl, err := LoadWhitelist(path)
	if err != nil {
		return Policy{}, err
	}
	p, err := New(wl, fallback)
	if err != nil {
		return Policy{}, &PolicyLoadError{Path: path, Err: err}
	}
	return p, nil
}

// IsWhitelisted reports whether id is exempt from the threshold check.
func (p Policy) IsWhitelisted(id string) bool {
	_, ok := p.Whitelisted[id]
	return ok
}

// Verdict is the result of evaluating a registry against a policy.
type Verdict struct {
	Pass    bool
	Reason  string
	Highest types.Severity
	Ceiling types.Severity
	// Offending counts the non-whitelisted records above the ceiling.
	Offending int
}

func (v Verdict) String() string {
	if v.Pass {
		return "PASS"
	}
	return fmt.Sprintf("FAIL (%s)", v.Reason)
}

// Evaluate fails when the highest severity among non-whitelisted records is
// above the policy ceiling. An empty registry passes.
func Evaluate(reg *registry.Registry, p Policy) Verdict {
	v := Verdict{Pass: true, Highest: types.SeverityNone, Ceiling: p.Ceiling}
	for rec := range reg.All() {
		if p.IsWhitelisted(rec.ID()) {
			continue
		}
		if rec.Severity() > v.Highest {
			v.Highest = rec.Severity()
		}
		if rec.Severity() > p.Ceiling {
			v.Offending++
		}
	}

	if v.Highest > p.Ceiling {
		v.Pass = false
		v.Reason = fmt.Sprintf("%d vulnerabilities above %s, highest is %s", v.Offending, p.Ceiling, v.Highest)
	}
	return v
}
