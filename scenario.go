// Package soundcheck is an acceptance-testing harness: it drives a
// backend-under-test through messaging and database side channels, then
// asserts observed behavior against declared expectations.
//
// A Scenario registers subsystems, orders their phases by priority, and
// aggregates every check into one Report. Configuration is explicit:
// subsystems are assembled with config structs and constructors before
// Run, and any mutation after the run starts is a ConfigError.
package soundcheck

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Scenario orchestrates registered subsystems through three phases:
// start (descending start priority), execute (same order), end
// (descending end priority). Equal priorities preserve registration
// order.
type Scenario struct {
	name   string
	log    *zap.Logger
	subs   []Subsystem
	sealed bool
}

// Option configures a Scenario.
type Option func(*Scenario)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scenario) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScenario creates an empty scenario.
func NewScenario(name string, opts ...Option) *Scenario {
	s := &Scenario{
		name: name,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scenario name.
func (s *Scenario) Name() string { return s.name }

// Register adds a subsystem to the run set. A scenario typically carries
// at most one subsystem of each kind; Register does not enforce that.
func (s *Scenario) Register(sub Subsystem) error {
	if s.sealed {
		return configErrorf("scenario %q already ran", s.name)
	}
	if sub == nil {
		return configErrorf("cannot register nil subsystem")
	}
	if !validPriority(sub.StartPriority()) {
		return configErrorf("subsystem %s start priority %d out of range [%d,%d]",
			sub.Name(), sub.StartPriority(), MinPriority, MaxPriority)
	}
	if !validPriority(sub.EndPriority()) {
		return configErrorf("subsystem %s end priority %d out of range [%d,%d]",
			sub.Name(), sub.EndPriority(), MinPriority, MaxPriority)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Run executes the scenario once.
//
// Any start-phase error aborts before the first execution phase with a
// SetupError: post-conditions are meaningless against unclean state.
// Execution-phase errors (a failed send, a broker fault) abort as well;
// they are broken plumbing, not failed observations. End phases always
// collect every finding rather than stopping at the first failure. When
// at least one finding failed, Run returns the report together with a
// VerdictError carrying it.
func (s *Scenario) Run(ctx context.Context) (*Report, error) {
	if s.sealed {
		return nil, configErrorf("scenario %q already ran", s.name)
	}
	s.sealed = true

	if len(s.subs) == 0 {
		return nil, configErrorf("scenario %q has no subsystems", s.name)
	}

	rep := &Report{
		Scenario: s.name,
		Started:  time.Now(),
	}

	byStart := make([]Subsystem, len(s.subs))
	copy(byStart, s.subs)
	sort.SliceStable(byStart, func(i, j int) bool {
		return byStart[i].StartPriority() > byStart[j].StartPriority()
	})

	for _, sub := range byStart {
		s.log.Debug("start phase",
			zap.String("scenario", s.name),
			zap.String("subsystem", sub.Name()),
			zap.Int("priority", sub.StartPriority()))
		if err := sub.Start(ctx); err != nil {
			return nil, &SetupError{Subsystem: sub.Name(), Err: err}
		}
	}

	for _, sub := range byStart {
		s.log.Debug("execute phase",
			zap.String("scenario", s.name),
			zap.String("subsystem", sub.Name()))
		if err := sub.Execute(ctx); err != nil {
			return nil, fmt.Errorf("execute %s: %w", sub.Name(), err)
		}
	}

	byEnd := make([]Subsystem, len(s.subs))
	copy(byEnd, s.subs)
	sort.SliceStable(byEnd, func(i, j int) bool {
		return byEnd[i].EndPriority() > byEnd[j].EndPriority()
	})

	for _, sub := range byEnd {
		s.log.Debug("end phase",
			zap.String("scenario", s.name),
			zap.String("subsystem", sub.Name()),
			zap.Int("priority", sub.EndPriority()))
		if err := sub.End(ctx, rep); err != nil {
			return nil, fmt.Errorf("end %s: %w", sub.Name(), err)
		}
	}

	rep.Finished = time.Now()
	s.log.Debug("scenario finished",
		zap.String("scenario", s.name),
		zap.Int("checks", rep.Len()),
		zap.Int("failed", len(rep.Failed())))

	if !rep.OK() {
		return rep, &VerdictError{Report: rep}
	}
	return rep, nil
}
