package tui

// scenarioEntry is one scenario document found in the scenario
// directory. A document that failed to parse still gets an entry so
// the problem is visible in the picker; it just cannot be run.
type scenarioEntry struct {
	Path        string
	Name        string
	Description string
	LoadErr     error
}

func (e scenarioEntry) runnable() bool {
	return e.LoadErr == nil
}
