package soundcheck

import (
	"sync/atomic"

	"github.com/epalmerini/soundcheck/rule"
)

var expectationIDs atomic.Int64

// Expectation declares that one message will arrive on a queue, optionally
// carrying an exact expected payload and any number of validation rules.
// Identity is a monotonically assigned integer id: two expectations on the
// same queue are distinct entities, and equality is keyed on the id alone.
//
// The received payload is written by the owning Messaging subsystem during
// the run; Actual exposes it read-only for inspection after Run returns.
type Expectation struct {
	id       int64
	queue    string
	expected *string
	rules    []rule.Rule

	actual   []byte
	received bool
}

// ExpectOption configures an Expectation at construction time.
type ExpectOption func(*Expectation)

// ExpectBody sets the exact payload the received message must equal.
// An empty string is a real expected value, distinct from not setting one.
func ExpectBody(body string) ExpectOption {
	return func(e *Expectation) {
		e.expected = &body
	}
}

// ExpectRule appends validation rules; order of addition is order of
// evaluation.
func ExpectRule(rules ...rule.Rule) ExpectOption {
	return func(e *Expectation) {
		e.rules = append(e.rules, rules...)
	}
}

// NewExpectation creates an expectation for one message on queue.
func NewExpectation(queue string, opts ...ExpectOption) (*Expectation, error) {
	if queue == "" {
		return nil, configErrorf("expectation queue must not be empty")
	}
	e := &Expectation{
		id:    expectationIDs.Add(1),
		queue: queue,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ID returns the expectation's identity handle.
func (e *Expectation) ID() int64 { return e.id }

// Queue returns the destination this expectation listens on.
func (e *Expectation) Queue() string { return e.queue }

// Rules returns the configured rules in evaluation order.
func (e *Expectation) Rules() []rule.Rule {
	out := make([]rule.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// ExpectedBody returns the exact-match payload and whether one was set.
func (e *Expectation) ExpectedBody() (string, bool) {
	if e.expected == nil {
		return "", false
	}
	return *e.expected, true
}

// Actual returns the payload received during the run, if any.
func (e *Expectation) Actual() ([]byte, bool) {
	return e.actual, e.received
}

// Equal reports identity equality: same id, regardless of queue or payload.
func (e *Expectation) Equal(other *Expectation) bool {
	return other != nil && e.id == other.id
}

// deliver stores the received payload. The owning subsystem is the sole
// writer; it calls this at most once per run.
func (e *Expectation) deliver(body []byte) {
	e.actual = body
	e.received = true
}
