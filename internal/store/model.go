package store

import (
	"time"

	"github.com/openstage/verity/internal/trace"
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses. Pending and Running are in flight; Passed, Failed and Error
// are terminal and immutable once written.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusError
}

// Run is one verification attempt against one entity.
// A run exclusively owns its trace steps and assertion results.
type Run struct {
	ID               string                  `json:"id"`
	ScriptID         string                  `json:"script_id"`
	EntityID         string                  `json:"entity_id"`
	Status           Status                  `json:"status"`
	Logs             string                  `json:"logs"`
	TraceSteps       []trace.Step            `json:"trace_steps"`
	AssertionResults []trace.AssertionResult `json:"assertion_results"`
	PassedCount      int                     `json:"passed_count"`
	FailedCount      int                     `json:"failed_count"`
	ErrorMessage     string                  `json:"error_message,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	FinishedAt       *time.Time              `json:"finished_at,omitempty"`
}

// Outcome is the terminal state written when a run's background execution
// finishes (cleanly or otherwise).
type Outcome struct {
	Status           Status
	Logs             string
	TraceSteps       []trace.Step
	AssertionResults []trace.AssertionResult
	PassedCount      int
	FailedCount      int
	ErrorMessage     string
}

// Assumption is an opaque hint attached to a script by its producer
// (an LLM or a human editor). Stored and served verbatim, never evaluated.
type Assumption struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Script is stored verification-script text plus producer metadata.
type Script struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	EntityType  string       `json:"entity_type"`
	Source      string       `json:"source"`
	Assumptions []Assumption `json:"assumptions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
