package soundcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSub records phase invocations into a shared trace.
type fakeSub struct {
	name      string
	startPrio int
	endPrio   int

	trace *[]string

	startErr error
	execErr  error
	endErr   error
	findings []Finding
}

func (f *fakeSub) Name() string       { return f.name }
func (f *fakeSub) StartPriority() int { return f.startPrio }
func (f *fakeSub) EndPriority() int   { return f.endPrio }

func (f *fakeSub) Start(context.Context) error {
	*f.trace = append(*f.trace, f.name+":start")
	return f.startErr
}

func (f *fakeSub) Execute(context.Context) error {
	*f.trace = append(*f.trace, f.name+":execute")
	return f.execErr
}

func (f *fakeSub) End(_ context.Context, rep *Report) error {
	*f.trace = append(*f.trace, f.name+":end")
	rep.Append(f.findings...)
	return f.endErr
}

func TestRunStartOrderDescendingPriority(t *testing.T) {
	var trace []string
	a := &fakeSub{name: "a", startPrio: 90, endPrio: 50, trace: &trace}
	b := &fakeSub{name: "b", startPrio: 10, endPrio: 50, trace: &trace}
	c := &fakeSub{name: "c", startPrio: 50, endPrio: 50, trace: &trace}

	s := NewScenario("order")
	// Registration order deliberately differs from priority order.
	require.NoError(t, s.Register(b))
	require.NoError(t, s.Register(a))
	require.NoError(t, s.Register(c))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"a:start", "c:start", "b:start",
		"a:execute", "c:execute", "b:execute",
		"a:end", "c:end", "b:end",
	}
	assert.Equal(t, want, trace)
}

func TestRunHigherStartPriorityCompletesFirst(t *testing.T) {
	var trace []string
	low := &fakeSub{name: "low", startPrio: 10, endPrio: 10, trace: &trace}
	high := &fakeSub{name: "high", startPrio: 90, endPrio: 90, trace: &trace}

	s := NewScenario("priority")
	require.NoError(t, s.Register(low))
	require.NoError(t, s.Register(high))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "high:start", trace[0])
	assert.Equal(t, "low:start", trace[1])
}

func TestRunEqualPrioritiesKeepRegistrationOrder(t *testing.T) {
	var trace []string
	first := &fakeSub{name: "first", startPrio: 50, endPrio: 50, trace: &trace}
	second := &fakeSub{name: "second", startPrio: 50, endPrio: 50, trace: &trace}
	third := &fakeSub{name: "third", startPrio: 50, endPrio: 50, trace: &trace}

	s := NewScenario("fifo")
	require.NoError(t, s.Register(first))
	require.NoError(t, s.Register(second))
	require.NoError(t, s.Register(third))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"first:start", "second:start", "third:start",
		"first:execute", "second:execute", "third:execute",
		"first:end", "second:end", "third:end",
	}
	assert.Equal(t, want, trace)
}

func TestRunEndOrderIndependentOfStartOrder(t *testing.T) {
	var trace []string
	// a starts first but ends last; b starts last but ends first.
	a := &fakeSub{name: "a", startPrio: 90, endPrio: 10, trace: &trace}
	b := &fakeSub{name: "b", startPrio: 10, endPrio: 90, trace: &trace}

	s := NewScenario("independent")
	require.NoError(t, s.Register(a))
	require.NoError(t, s.Register(b))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"a:start", "b:start",
		"a:execute", "b:execute",
		"b:end", "a:end",
	}
	assert.Equal(t, want, trace)
}

func TestRunSetupFailureAbortsEverything(t *testing.T) {
	var trace []string
	boom := errors.New("queue unreachable")
	a := &fakeSub{name: "a", startPrio: 90, endPrio: 90, trace: &trace}
	broken := &fakeSub{name: "broken", startPrio: 50, endPrio: 50, trace: &trace, startErr: boom}
	c := &fakeSub{name: "c", startPrio: 10, endPrio: 10, trace: &trace}

	s := NewScenario("abort")
	require.NoError(t, s.Register(a))
	require.NoError(t, s.Register(broken))
	require.NoError(t, s.Register(c))

	rep, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, rep)

	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "broken", setupErr.Subsystem)
	assert.ErrorIs(t, err, boom)

	// a and broken started; nothing executed, nothing ended, c never started.
	assert.Equal(t, []string{"a:start", "broken:start"}, trace)
}

func TestRunExecuteErrorAbortsEndPhases(t *testing.T) {
	var trace []string
	boom := errors.New("send refused")
	a := &fakeSub{name: "a", startPrio: 90, endPrio: 90, trace: &trace, execErr: boom}
	b := &fakeSub{name: "b", startPrio: 10, endPrio: 10, trace: &trace}

	s := NewScenario("exec-abort")
	require.NoError(t, s.Register(a))
	require.NoError(t, s.Register(b))

	rep, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"a:start", "b:start", "a:execute"}, trace)
}

func TestRunFailedFindingYieldsVerdictError(t *testing.T) {
	var trace []string
	sub := &fakeSub{
		name: "checks", startPrio: 50, endPrio: 50, trace: &trace,
		findings: []Finding{
			{Subsystem: "checks", Target: "q", Check: "exact match", Kind: KindMismatch, OK: false},
			{Subsystem: "checks", Target: "q", Check: "presence", Kind: KindPresence, OK: true},
		},
	}

	s := NewScenario("verdict")
	require.NoError(t, s.Register(sub))

	rep, err := s.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, rep)

	var verdict *VerdictError
	require.ErrorAs(t, err, &verdict)
	assert.Same(t, rep, verdict.Report)
	assert.False(t, rep.OK())
	assert.Len(t, rep.Failed(), 1)
	assert.Equal(t, 2, rep.Len())
}

func TestRunAllFindingsPass(t *testing.T) {
	var trace []string
	sub := &fakeSub{
		name: "checks", startPrio: 50, endPrio: 50, trace: &trace,
		findings: []Finding{
			{Subsystem: "checks", Target: "q", Check: "presence", Kind: KindPresence, OK: true},
		},
	}

	s := NewScenario("pass")
	require.NoError(t, s.Register(sub))

	rep, err := s.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.True(t, rep.OK())
	assert.Equal(t, "pass", rep.Scenario)
	assert.False(t, rep.Started.IsZero())
	assert.False(t, rep.Finished.IsZero())
}

func TestRegisterRejectsBadInput(t *testing.T) {
	var trace []string
	var cfgErr *ConfigError

	s := NewScenario("register")
	err := s.Register(nil)
	require.ErrorAs(t, err, &cfgErr)

	err = s.Register(&fakeSub{name: "hot", startPrio: 101, endPrio: 50, trace: &trace})
	require.ErrorAs(t, err, &cfgErr)

	err = s.Register(&fakeSub{name: "cold", startPrio: 50, endPrio: -1, trace: &trace})
	require.ErrorAs(t, err, &cfgErr)
}

func TestRunIsSingleShot(t *testing.T) {
	var trace []string
	sub := &fakeSub{name: "single", startPrio: 50, endPrio: 50, trace: &trace}

	s := NewScenario("once")
	require.NoError(t, s.Register(sub))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	var cfgErr *ConfigError
	_, err = s.Run(context.Background())
	require.ErrorAs(t, err, &cfgErr)

	err = s.Register(&fakeSub{name: "late", startPrio: 50, endPrio: 50, trace: &trace})
	require.ErrorAs(t, err, &cfgErr)
}

func TestRunEmptyScenarioRejected(t *testing.T) {
	s := NewScenario("empty")
	_, err := s.Run(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
