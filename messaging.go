package soundcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultBudget is the shared receive budget when MessagingConfig.Budget
// is zero.
const DefaultBudget = 10 * time.Second

// purgeTimeout bounds each per-queue drain during the start phase. It is
// deliberately short and unrelated to the receive budget.
const purgeTimeout = 2 * time.Second

const (
	defaultMessagingStartPriority = 100
	defaultMessagingEndPriority   = 100
)

// MessagingConfig assembles a Messaging subsystem.
type MessagingConfig struct {
	// Broker is the transport. Required.
	Broker Broker
	// Purge drains every queue referenced by a send or an expectation
	// before anything is sent.
	Purge bool
	// Budget is the total wall-clock time for receiving across all
	// expectations combined, not per expectation. Zero means
	// DefaultBudget.
	Budget time.Duration
	Logger *zap.Logger
}

// Messaging owns a scenario's outbound sends and expectations. Its start
// phase optionally purges, its execution phase sends then receives under
// one shared budget, and its end phase turns each expectation into
// findings.
//
// Multiple expectations on the same queue are independent entities each
// consuming one message; delivery order across them is best-effort FIFO,
// not a guarantee.
type Messaging struct {
	broker Broker
	purge  bool
	budget time.Duration
	log    *zap.Logger

	outbound []Message
	expects  []*Expectation

	startPrio int
	endPrio   int
	sealed    bool
}

// NewMessaging validates cfg and builds the subsystem with priorities
// 100/100.
func NewMessaging(cfg MessagingConfig) (*Messaging, error) {
	if cfg.Broker == nil {
		return nil, configErrorf("messaging requires a broker")
	}
	if cfg.Budget < 0 {
		return nil, configErrorf("messaging budget must not be negative, got %s", cfg.Budget)
	}
	budget := cfg.Budget
	if budget == 0 {
		budget = DefaultBudget
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Messaging{
		broker:    cfg.Broker,
		purge:     cfg.Purge,
		budget:    budget,
		log:       log,
		startPrio: defaultMessagingStartPriority,
		endPrio:   defaultMessagingEndPriority,
	}, nil
}

// SetPriorities overrides the default start/end priorities.
func (m *Messaging) SetPriorities(start, end int) error {
	if m.sealed {
		return configErrorf("messaging already ran")
	}
	if !validPriority(start) || !validPriority(end) {
		return configErrorf("messaging priorities %d/%d out of range [%d,%d]",
			start, end, MinPriority, MaxPriority)
	}
	m.startPrio = start
	m.endPrio = end
	return nil
}

func (m *Messaging) Name() string       { return "messaging" }
func (m *Messaging) StartPriority() int { return m.startPrio }
func (m *Messaging) EndPriority() int   { return m.endPrio }

// Send queues an outbound message. Messages to the same queue keep
// submission order.
func (m *Messaging) Send(msg Message) error {
	if m.sealed {
		return configErrorf("messaging already ran, cannot queue sends")
	}
	if msg.Queue == "" {
		return configErrorf("outbound message queue must not be empty")
	}
	m.outbound = append(m.outbound, msg)
	return nil
}

// ExpectFrom declares that one message will arrive on queue and registers
// the expectation with this subsystem. The returned Expectation stays
// readable after the run for inspecting the received payload.
func (m *Messaging) ExpectFrom(queue string, opts ...ExpectOption) (*Expectation, error) {
	if m.sealed {
		return nil, configErrorf("messaging already ran, cannot add expectations")
	}
	e, err := NewExpectation(queue, opts...)
	if err != nil {
		return nil, err
	}
	m.expects = append(m.expects, e)
	return e, nil
}

// Budget returns the shared receive budget.
func (m *Messaging) Budget() time.Duration { return m.budget }

// Expectations returns the registered expectations in declaration order.
func (m *Messaging) Expectations() []*Expectation {
	out := make([]*Expectation, len(m.expects))
	copy(out, m.expects)
	return out
}

// Start seals the configuration and, when purge is enabled, drains every
// referenced queue. An already empty queue is success; a transport error
// is fatal.
func (m *Messaging) Start(ctx context.Context) error {
	m.sealed = true
	if !m.purge {
		return nil
	}
	for _, q := range m.queues() {
		pctx, cancel := context.WithTimeout(ctx, purgeTimeout)
		err := m.broker.Purge(pctx, q)
		cancel()
		if err != nil {
			return fmt.Errorf("purge %q: %w", q, err)
		}
		m.log.Debug("purged queue", zap.String("queue", q))
	}
	return nil
}

// Execute sends every queued message in submission order, then runs one
// receive cycle: a single deadline covers all expectations, served in
// declaration order, each receive bounded by the time remaining. The
// clock never resets between attempts; once the deadline passes, no
// further receive is issued.
func (m *Messaging) Execute(ctx context.Context) error {
	for _, msg := range m.outbound {
		if err := m.broker.Send(ctx, msg); err != nil {
			return fmt.Errorf("send to %q: %w", msg.Queue, err)
		}
		m.log.Debug("sent message",
			zap.String("queue", msg.Queue),
			zap.Int("bytes", len(msg.Body)))
	}

	deadline := time.Now().Add(m.budget)
	for _, e := range m.expects {
		wait := time.Until(deadline)
		if wait <= 0 {
			m.log.Debug("receive budget exhausted",
				zap.String("queue", e.Queue()),
				zap.Int64("expectation", e.ID()))
			continue
		}
		msg, err := m.broker.Receive(ctx, e.Queue(), wait)
		if errors.Is(err, ErrNoMessage) {
			continue
		}
		if err != nil {
			return fmt.Errorf("receive from %q: %w", e.Queue(), err)
		}
		e.deliver(msg.Body)
		m.log.Debug("received message",
			zap.String("queue", e.Queue()),
			zap.Int64("expectation", e.ID()),
			zap.Int("bytes", len(msg.Body)))
	}
	return nil
}

// End evaluates every expectation into findings. An expectation that
// received nothing fails with a timeout finding; a received payload is
// checked against the exact-match value (when set) and every rule, each
// producing its own finding; with neither configured, receipt alone is a
// passing presence finding.
func (m *Messaging) End(_ context.Context, rep *Report) error {
	for _, e := range m.expects {
		body, received := e.Actual()
		if !received {
			rep.Append(Finding{
				Subsystem: m.Name(),
				Target:    e.Queue(),
				Check:     "receive",
				Kind:      KindTimeout,
				OK:        false,
				Detail:    fmt.Sprintf("no message within %s budget", m.budget),
			})
			continue
		}

		checked := false
		if want, set := e.ExpectedBody(); set {
			checked = true
			rep.Append(Finding{
				Subsystem: m.Name(),
				Target:    e.Queue(),
				Check:     "exact match",
				Kind:      KindMismatch,
				OK:        want == string(body),
				Expected:  want,
				Actual:    string(body),
			})
		}
		for _, r := range e.Rules() {
			checked = true
			f := Finding{
				Subsystem: m.Name(),
				Target:    e.Queue(),
				Check:     r.Name(),
				Kind:      KindRule,
				OK:        true,
				Actual:    string(body),
			}
			if err := r.Check(body); err != nil {
				f.OK = false
				f.Detail = err.Error()
			}
			rep.Append(f)
		}
		if !checked {
			rep.Append(Finding{
				Subsystem: m.Name(),
				Target:    e.Queue(),
				Check:     "presence",
				Kind:      KindPresence,
				OK:        true,
				Actual:    string(body),
			})
		}
	}
	return nil
}

// queues returns every distinct queue referenced by sends or
// expectations, in first-reference order.
func (m *Messaging) queues() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(q string) {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	for _, msg := range m.outbound {
		add(msg.Queue)
	}
	for _, e := range m.expects {
		add(e.Queue())
	}
	return out
}
