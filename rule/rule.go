// Package rule provides stateless validation rules evaluated against
// received payloads. A rule is a named predicate: Check returns nil on
// pass and a diagnostic error on failure. Rules never mutate the payload
// and carry no state between evaluations.
package rule

import (
	"bytes"
	"errors"
	"fmt"
)

// Rule validates one payload.
type Rule interface {
	Name() string
	Check(payload []byte) error
}

type funcRule struct {
	name string
	fn   func([]byte) bool
}

// Func wraps a plain predicate as a named rule.
func Func(name string, fn func([]byte) bool) Rule {
	return funcRule{name: name, fn: fn}
}

func (r funcRule) Name() string { return r.name }

func (r funcRule) Check(payload []byte) error {
	if r.fn(payload) {
		return nil
	}
	return errors.New("predicate returned false")
}

// NotEmpty fails on zero-length payloads.
func NotEmpty() Rule {
	return Func("not-empty", func(p []byte) bool { return len(p) > 0 })
}

type containsRule struct {
	substr string
}

// Contains requires the payload to contain substr.
func Contains(substr string) Rule {
	return containsRule{substr: substr}
}

func (r containsRule) Name() string {
	return fmt.Sprintf("contains %q", r.substr)
}

func (r containsRule) Check(payload []byte) error {
	if bytes.Contains(payload, []byte(r.substr)) {
		return nil
	}
	return fmt.Errorf("payload does not contain %q", r.substr)
}
