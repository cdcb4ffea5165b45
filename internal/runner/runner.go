// Package runner drives the verification run state machine.
//
// A run starts with a synchronous validation and a durable write, then
// executes in a background goroutine: fetch the script, run it in a fresh
// sandbox isolate, parse the trace protocol out of the captured log, and
// write exactly one terminal state. Pollers observe progress through point
// reads; terminal states are immutable once written.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openstage/verity/internal/sandbox"
	"github.com/openstage/verity/internal/store"
	"github.com/openstage/verity/internal/trace"
)

// Runner executes verification scripts and tracks their runs.
type Runner struct {
	store *store.Store
	box   *sandbox.Sandbox
	ids   IDGenerator
	now   func() time.Time

	wg sync.WaitGroup
}

// New creates a runner. A nil ids falls back to UUIDv7 run ids.
func New(st *store.Store, box *sandbox.Sandbox, ids IDGenerator) *Runner {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Runner{
		store: st,
		box:   box,
		ids:   ids,
		now:   time.Now,
	}
}

// Start creates a run for the given script and entity and begins executing
// it in the background.
//
// Input validation and the initial persist happen synchronously, so the
// returned run id is durable and pollable immediately. The actual script
// execution is asynchronous; callers observe its outcome via Poll.
func (r *Runner) Start(ctx context.Context, scriptID, entityID string) (store.Run, error) {
	if scriptID == "" {
		return store.Run{}, &MissingInputError{Field: "script_id"}
	}
	if entityID == "" {
		return store.Run{}, &MissingInputError{Field: "entity_id"}
	}

	script, err := r.store.GetScript(scriptID)
	if err != nil {
		return store.Run{}, fmt.Errorf("start run: %w", err)
	}

	run := store.Run{
		ID:        r.ids.Generate(),
		ScriptID:  script.ID,
		EntityID:  entityID,
		Status:    store.StatusRunning,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.CreateRun(run); err != nil {
		return store.Run{}, fmt.Errorf("start run: %w", err)
	}

	slog.Info("run started", "run_id", run.ID, "script_id", script.ID, "entity_id", entityID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Detached from the request context: a 202-style caller disconnecting
		// must not kill the run.
		out := r.Exec(context.Background(), script.Source, entityID)
		if err := r.store.FinishRun(run.ID, out, r.now().UTC()); err != nil {
			slog.Error("failed to persist run outcome", "run_id", run.ID, "error", err)
			return
		}
		slog.Info("run finished", "run_id", run.ID, "status", out.Status,
			"passed", out.PassedCount, "failed", out.FailedCount)
	}()

	return run, nil
}

// Poll reads the current state of a run.
func (r *Runner) Poll(id string) (store.Run, error) {
	return r.store.GetRun(id)
}

// Wait blocks until all in-flight background executions have finished.
// Used for graceful shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Exec runs one script synchronously and classifies its outcome. It never
// touches the store; Start uses it for background runs and the CLI uses it
// for one-shot executions.
//
// Classification:
//   - resource kill (timeout, memory) or crash: error, with whatever valid
//     trace steps the script logged before dying
//   - clean completion with malformed trace or result lines: error, valid
//     steps kept
//   - clean completion without a result line: error with the no-verdict
//     diagnostic
//   - verdict present: passed iff the script reported zero failures
func (r *Runner) Exec(ctx context.Context, source, entityID string) store.Outcome {
	res, runErr := r.box.Run(ctx, source, entityID)

	// Valid steps are evidence regardless of how the run ended.
	steps, stepsErr := trace.ParseSteps(res.Stdout)

	out := store.Outcome{
		Logs:       res.Stdout,
		TraceSteps: steps,
	}

	if runErr != nil {
		out.Status = store.StatusError
		out.ErrorMessage = runErr.Error()
		var serr *sandbox.ScriptError
		if errors.As(runErr, &serr) && res.Stderr != "" {
			out.ErrorMessage = res.Stderr
		}
		return out
	}

	if stepsErr != nil {
		out.Status = store.StatusError
		out.ErrorMessage = stepsErr.Error()
		return out
	}

	verdict, err := trace.ParseResult(res.Stdout)
	if err != nil {
		out.Status = store.StatusError
		if errors.Is(err, trace.ErrNoVerdict) {
			out.ErrorMessage = trace.NoVerdictDiagnostic
		} else {
			out.ErrorMessage = err.Error()
		}
		return out
	}

	out.AssertionResults = verdict.Results
	out.PassedCount = verdict.Passed
	out.FailedCount = verdict.Failed
	if verdict.Failed == 0 {
		out.Status = store.StatusPassed
	} else {
		out.Status = store.StatusFailed
	}
	return out
}
