package soundcheck

import "fmt"

// ConfigError reports invalid or missing configuration: an empty queue
// name, a priority out of range, a mutation after the run started. It is
// surfaced immediately by the call that detected it, never deferred.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// SetupError reports a start-phase failure (purge error, pre-statement
// error). It is fatal: the scenario aborts before any execution phase.
type SetupError struct {
	Subsystem string
	Err       error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Subsystem, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// VerdictError is returned by Run when at least one finding failed. The
// full report rides along so callers can render every failure, not just
// the first.
type VerdictError struct {
	Report *Report
}

func (e *VerdictError) Error() string {
	return fmt.Sprintf("scenario %s: %d of %d checks failed",
		e.Report.Scenario, len(e.Report.Failed()), e.Report.Len())
}
