package soundcheck

import "context"

// Priority bounds for subsystem ordering. 100 runs first, 0 last.
const (
	MinPriority = 0
	MaxPriority = 100
)

// Subsystem is one independently configured unit of scenario setup,
// execution, and teardown. Messaging, Database, and ObjectStore are the
// only implementations; a scenario is not a plugin host.
//
// Start and end priorities are independent: a subsystem may start last
// but end first. End receives the shared report and appends its findings
// there; an End error means the phase itself broke, not that a check
// failed.
type Subsystem interface {
	Name() string
	StartPriority() int
	EndPriority() int
	Start(ctx context.Context) error
	Execute(ctx context.Context) error
	End(ctx context.Context, rep *Report) error
}

func validPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}
