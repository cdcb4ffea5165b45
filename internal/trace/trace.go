// Package trace defines the line protocol between verification scripts and
// the engine.
//
// A script communicates evidence by prefix-tagged log lines, one JSON object
// per line:
//
//	__TRACE__{"step": 1, "type": "fetch", "title": "Load order", "data": {...}}
//	__RESULT__{"results": [...], "passed": 4, "failed": 1}
//
// Step lines may appear anywhere and are parsed independently of the result
// line: a script that dies before asserting still yields whatever steps it
// logged. The result line is expected once, at the end. Lines without a
// recognized prefix are free-form diagnostics and contribute no structured
// data.
//
// This is a wire format, not text scraping: required fields are validated
// per step kind and malformed entries are rejected, not skipped.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Line sentinels. A step line is StepSentinel immediately followed by a JSON
// object; likewise ResultSentinel for the final verdict.
const (
	StepSentinel   = "__TRACE__"
	ResultSentinel = "__RESULT__"
)

// Kind classifies a trace step.
type Kind string

// Step kinds. The kind determines the required payload shape (see validate).
const (
	KindFetch       Kind = "fetch"
	KindCalculation Kind = "calculation"
	KindAssertion   Kind = "assertion"
)

// Step is one recorded unit of evidence from a script execution.
type Step struct {
	// Ordinal is assigned by the script and must strictly increase
	// within a run.
	Ordinal int `json:"step"`
	Kind    Kind `json:"type"`
	Title   string `json:"title"`
	// Data is the kind-specific payload:
	//   fetch:       entity (type name), plus record or count+records
	//   calculation: formula and value, plus supporting inputs
	//   assertion:   results ([]AssertionResult)
	Data map[string]any `json:"data,omitempty"`
}

// AssertionResult is one expected-vs-received comparison.
// Pass is derived by the script from its tolerance rule, never hand-set
// independently of Expected and Received.
type AssertionResult struct {
	Label    string `json:"label"`
	Expected any    `json:"expected"`
	Received any    `json:"received"`
	Pass     bool   `json:"pass"`
}

// Result is the script's final verdict.
type Result struct {
	Results []AssertionResult `json:"results"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
}

// ErrNoVerdict is returned by ParseResult when the log contains no result
// sentinel line: the script ran to completion without producing a verdict.
var ErrNoVerdict = errors.New("no result line in script output")

// NoVerdictDiagnostic is the synthetic message recorded on a run whose
// script completed without emitting a result line.
const NoVerdictDiagnostic = "script completed without producing a verdict; " +
	"the verification may be missing its assertion block"

// ProtocolError is returned when a sentinel-prefixed line fails to parse or
// validate. Partial results are never guessed from a malformed line.
type ProtocolError struct {
	Line   string // The offending line, truncated for reporting
	Reason string
	Err    error // Underlying JSON error, if any
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s (%v) in line %q", e.Reason, e.Err, line)
	}
	return fmt.Sprintf("protocol error: %s in line %q", e.Reason, line)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ParseSteps extracts the ordered trace steps from a captured log.
//
// Every valid step is returned even when later lines are malformed, so a
// partially broken run still yields its evidence. The returned error is the
// first protocol violation encountered (malformed JSON, failed kind
// validation, or a non-increasing ordinal), or nil.
func ParseSteps(logs string) ([]Step, error) {
	var steps []Step
	var firstErr error
	lastOrdinal := 0

	for _, line := range strings.Split(logs, "\n") {
		rest, ok := strings.CutPrefix(line, StepSentinel)
		if !ok {
			continue
		}

		var step Step
		if err := json.Unmarshal([]byte(rest), &step); err != nil {
			if firstErr == nil {
				firstErr = &ProtocolError{Line: line, Reason: "malformed step JSON", Err: err}
			}
			continue
		}
		if err := step.validate(); err != nil {
			if firstErr == nil {
				firstErr = &ProtocolError{Line: line, Reason: err.Error()}
			}
			continue
		}
		if step.Ordinal <= lastOrdinal {
			if firstErr == nil {
				firstErr = &ProtocolError{
					Line:   line,
					Reason: fmt.Sprintf("step ordinal %d not greater than previous %d", step.Ordinal, lastOrdinal),
				}
			}
			continue
		}

		lastOrdinal = step.Ordinal
		steps = append(steps, step)
	}

	return steps, firstErr
}

// ParseResult extracts the final verdict from a captured log.
//
// The result line must be the last sentinel-prefixed result line in the log;
// anything after it is ignored. Returns ErrNoVerdict when no result line
// exists and a ProtocolError when the line's JSON is malformed - callers
// must not fall back to partial results in either case.
func ParseResult(logs string) (Result, error) {
	var raw string
	found := false
	for _, line := range strings.Split(logs, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), ResultSentinel); ok {
			raw = rest
			found = true
		}
	}
	if !found {
		return Result{}, ErrNoVerdict
	}

	var res Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &res); err != nil {
		return Result{}, &ProtocolError{Line: ResultSentinel + raw, Reason: "malformed result JSON", Err: err}
	}
	if res.Passed < 0 || res.Failed < 0 {
		return Result{}, &ProtocolError{Line: ResultSentinel + raw, Reason: "negative assertion counts"}
	}
	return res, nil
}

// validate checks the kind-specific payload contract.
func (s *Step) validate() error {
	switch s.Kind {
	case KindFetch:
		if _, ok := s.Data["entity"].(string); !ok {
			return errors.New("fetch step missing entity type")
		}
		_, hasRecord := s.Data["record"]
		_, hasRecords := s.Data["records"]
		if !hasRecord && !hasRecords {
			return errors.New("fetch step missing record snapshot")
		}
	case KindCalculation:
		if _, ok := s.Data["formula"].(string); !ok {
			return errors.New("calculation step missing formula")
		}
		if _, ok := s.Data["value"].(float64); !ok {
			return errors.New("calculation step missing numeric value")
		}
	case KindAssertion:
		if _, ok := s.Data["results"].([]any); !ok {
			return errors.New("assertion step missing results array")
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

// AssertionSteps returns the assertion results embedded in assertion steps,
// in trace order. Used to cross-check that every asserted comparison also
// appears in the final result.
func AssertionSteps(steps []Step) []AssertionResult {
	var out []AssertionResult
	for _, s := range steps {
		if s.Kind != KindAssertion {
			continue
		}
		raw, _ := s.Data["results"].([]any)
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ar := AssertionResult{
				Expected: m["expected"],
				Received: m["received"],
			}
			ar.Label, _ = m["label"].(string)
			ar.Pass, _ = m["pass"].(bool)
			out = append(out, ar)
		}
	}
	return out
}
