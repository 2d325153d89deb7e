package soundcheck

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies what a finding checked: message arrival, exact payload
// match, a validation rule, a database post-condition, or bare presence.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindMismatch      Kind = "mismatch"
	KindRule          Kind = "rule"
	KindPostCondition Kind = "postcondition"
	KindPresence      Kind = "presence"
)

// Finding is one evaluated check, passed or failed. Failed findings carry
// enough context to diagnose without rerunning the scenario.
type Finding struct {
	Subsystem string
	Target    string // queue name, query, or object key
	Check     string
	Kind      Kind
	OK        bool
	Expected  string
	Actual    string
	Detail    string
}

// Report aggregates every finding of one scenario run. Findings are
// append-only and keep insertion order; passes are recorded alongside
// failures so the verdict shows the complete picture.
type Report struct {
	Scenario string
	Started  time.Time
	Finished time.Time

	findings []Finding
}

// Append records findings in order.
func (r *Report) Append(fs ...Finding) {
	r.findings = append(r.findings, fs...)
}

// Findings returns a copy of all recorded findings.
func (r *Report) Findings() []Finding {
	out := make([]Finding, len(r.findings))
	copy(out, r.findings)
	return out
}

// Failed returns only the findings that did not pass.
func (r *Report) Failed() []Finding {
	var out []Finding
	for _, f := range r.findings {
		if !f.OK {
			out = append(out, f)
		}
	}
	return out
}

// OK reports whether every finding passed.
func (r *Report) OK() bool {
	for _, f := range r.findings {
		if !f.OK {
			return false
		}
	}
	return true
}

// Len returns the number of recorded findings.
func (r *Report) Len() int {
	return len(r.findings)
}

// Summary renders a deterministic plain-text breakdown: one header line,
// one line per finding, indented diagnostics for failures. Timestamps are
// deliberately excluded so output is stable across runs.
func (r *Report) Summary() string {
	var b strings.Builder

	if r.OK() {
		fmt.Fprintf(&b, "scenario %s: PASS (all %d checks passed)\n", r.Scenario, len(r.findings))
	} else {
		fmt.Fprintf(&b, "scenario %s: FAIL (%d of %d checks failed)\n", r.Scenario, len(r.Failed()), len(r.findings))
	}

	for i, f := range r.findings {
		status := "pass"
		if !f.OK {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  %d. %s %s/%s %s", i+1, status, f.Subsystem, f.Target, f.Check)
		if !f.OK {
			fmt.Fprintf(&b, " (%s)", f.Kind)
		}
		b.WriteByte('\n')
		if f.OK {
			continue
		}
		if f.Expected != "" {
			fmt.Fprintf(&b, "     expected: %s\n", f.Expected)
		}
		if f.Actual != "" {
			fmt.Fprintf(&b, "     actual:   %s\n", f.Actual)
		}
		if f.Detail != "" {
			fmt.Fprintf(&b, "     %s\n", f.Detail)
		}
	}

	return b.String()
}
