package history

import (
	"github.com/epalmerini/soundcheck"
)

// FromReport flattens a scenario report into the rows SaveRun persists.
// The profile may be empty; toNullString handles it on the way in.
func FromReport(runID, profile string, rep *soundcheck.Report) (Run, []Finding) {
	run := Run{
		RunID:    runID,
		Scenario: rep.Scenario,
		Profile:  profile,
		Started:  rep.Started,
		Finished: rep.Finished,
		OK:       rep.OK(),
		Checks:   int64(rep.Len()),
		Failed:   int64(len(rep.Failed())),
	}

	findings := make([]Finding, 0, rep.Len())
	for _, f := range rep.Findings() {
		findings = append(findings, Finding{
			Subsystem: f.Subsystem,
			Target:    f.Target,
			Check:     f.Check,
			Kind:      string(f.Kind),
			OK:        f.OK,
			Expected:  f.Expected,
			Actual:    f.Actual,
			Detail:    f.Detail,
		})
	}
	return run, findings
}
