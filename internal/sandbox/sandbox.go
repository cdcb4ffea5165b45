// Package sandbox executes untrusted verification scripts in an isolated
// JavaScript interpreter.
//
// Scripts get no ambient trust. The only capabilities inside the isolate are
// the ones injected at construction: entity fetch/search (bound to a
// specific remote endpoint by the caller), console.log into an in-memory
// buffer, and a read-only ENTITY_ID binding. No file system, no sockets, no
// environment, no host references - every value crossing the boundary is a
// JSON copy.
//
// Each Run gets a fresh interpreter; isolates are never reused, so no state
// leaks between runs. A wall-clock timeout and a memory ceiling bound every
// execution, reported as distinct failure kinds so resource kills are never
// mistaken for script bugs.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/openstage/verity/internal/entity"
	"github.com/openstage/verity/internal/remote"
)

// Default resource limits.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMemoryLimit = 128 << 20 // 128MB
)

// memCheckInterval is how often the memory watchdog samples the heap.
const memCheckInterval = 10 * time.Millisecond

// Capabilities is the full set of host functions granted to a script.
// Injected explicitly at construction, never reachable as ambient state.
type Capabilities struct {
	// Get fetches one entity; exposed to the script as getEntity(type, id).
	Get func(ctx context.Context, entityType, id string) (entity.Fields, error)
	// Search queries entities; exposed as searchEntities(type, constraints, limit).
	Search func(ctx context.Context, entityType string, constraints []remote.Constraint, limit int) ([]entity.Fields, error)
}

// Options bound a single execution.
type Options struct {
	// Timeout is the hard wall-clock limit. Zero means DefaultTimeout.
	Timeout time.Duration
	// MemoryLimit is the heap ceiling in bytes. Zero means
	// DefaultMemoryLimit. Enforcement samples host heap growth while the
	// script runs, so the ceiling is approximate, not exact accounting.
	MemoryLimit int64
}

// Sandbox builds fresh isolates for verification scripts.
// The zero value is not usable; construct with New.
type Sandbox struct {
	caps Capabilities
	opts Options
}

// New creates a sandbox factory with the given capability bundle.
func New(caps Capabilities, opts Options) *Sandbox {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	return &Sandbox{caps: caps, opts: opts}
}

// Result is the captured output of one execution.
type Result struct {
	// Stdout is the full log buffer (console.log lines, including trace
	// protocol lines). Populated even when the run failed, so partial
	// evidence survives.
	Stdout string
	// Stderr carries a thrown error's message and stack, empty on success.
	Stderr string
}

// interrupt causes, distinguished when classifying an InterruptedError.
type interruptCause int

const (
	causeTimeout interruptCause = iota
	causeMemory
	causeContext
)

// Run executes one script against a fresh isolate.
//
// The returned error is nil on clean completion, or one of TimeoutError,
// MemoryLimitError, ScriptError, or the context's error. Result.Stdout is
// valid in every case.
func (s *Sandbox) Run(ctx context.Context, source, entityID string) (Result, error) {
	vm := goja.New()

	var logBuf strings.Builder
	if err := s.install(ctx, vm, &logBuf, entityID); err != nil {
		return Result{}, err
	}

	prog, err := goja.Compile("script.js", source, false)
	if err != nil {
		serr := &ScriptError{Message: err.Error()}
		return Result{Stderr: serr.Message}, serr
	}

	// Wall-clock limit.
	timer := time.AfterFunc(s.opts.Timeout, func() {
		vm.Interrupt(causeTimeout)
	})
	defer timer.Stop()

	// Memory ceiling: watch heap growth while the script runs and interrupt
	// past the limit. Sampling the host heap is approximate but catches the
	// runaway-allocation scripts the ceiling exists for.
	done := make(chan struct{})
	defer close(done)
	go s.watchMemory(vm, done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(causeContext)
		case <-done:
		}
	}()

	start := time.Now()
	_, runErr := vm.RunProgram(prog)
	elapsed := time.Since(start)

	res := Result{Stdout: logBuf.String()}

	if runErr == nil {
		slog.Debug("script completed", "entity_id", entityID, "elapsed", elapsed)
		return res, nil
	}

	err = s.classify(ctx, runErr)
	var serr *ScriptError
	if errors.As(err, &serr) {
		res.Stderr = serr.Message
		if serr.Stack != "" {
			res.Stderr = serr.Stack
		}
	}
	slog.Debug("script failed", "entity_id", entityID, "elapsed", elapsed, "error", err)
	return res, err
}

// install wires the capability bundle into the isolate's global scope.
func (s *Sandbox) install(ctx context.Context, vm *goja.Runtime, logBuf *strings.Builder, entityID string) error {
	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, stringify(arg.Export()))
		}
		logBuf.WriteString(strings.Join(parts, " "))
		logBuf.WriteByte('\n')
		return goja.Undefined()
	}); err != nil {
		return fmt.Errorf("install console: %w", err)
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("install console: %w", err)
	}

	if err := vm.Set("getEntity", func(entityType, id string) (goja.Value, error) {
		fields, err := s.caps.Get(ctx, entityType, id)
		if err != nil {
			return nil, err
		}
		return copyInto(vm, fields)
	}); err != nil {
		return fmt.Errorf("install getEntity: %w", err)
	}

	if err := vm.Set("searchEntities", func(entityType string, rawConstraints []map[string]any, limit int) (goja.Value, error) {
		constraints := make([]remote.Constraint, 0, len(rawConstraints))
		for _, c := range rawConstraints {
			constraint := remote.Constraint{Value: c["value"]}
			constraint.Key, _ = c["key"].(string)
			constraint.Operator, _ = c["constraint_type"].(string)
			constraints = append(constraints, constraint)
		}
		results, err := s.caps.Search(ctx, entityType, constraints, limit)
		if err != nil {
			return nil, err
		}
		return copyInto(vm, results)
	}); err != nil {
		return fmt.Errorf("install searchEntities: %w", err)
	}

	// Read-only binding: scripts can read ENTITY_ID but not reassign it.
	if err := vm.GlobalObject().DefineDataProperty("ENTITY_ID",
		vm.ToValue(entityID), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("install ENTITY_ID: %w", err)
	}

	return nil
}

// watchMemory interrupts the isolate when heap growth since baseline
// crosses the ceiling.
func (s *Sandbox) watchMemory(vm *goja.Runtime, done <-chan struct{}) {
	var base runtime.MemStats
	runtime.ReadMemStats(&base)

	ticker := time.NewTicker(memCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var now runtime.MemStats
			runtime.ReadMemStats(&now)
			if now.HeapAlloc > base.HeapAlloc &&
				int64(now.HeapAlloc-base.HeapAlloc) > s.opts.MemoryLimit {
				vm.Interrupt(causeMemory)
				return
			}
		}
	}
}

// classify maps a goja failure to the sandbox error taxonomy.
func (s *Sandbox) classify(ctx context.Context, runErr error) error {
	var intr *goja.InterruptedError
	if errors.As(runErr, &intr) {
		switch intr.Value() {
		case causeTimeout:
			return &TimeoutError{Limit: s.opts.Timeout}
		case causeMemory:
			return &MemoryLimitError{Limit: s.opts.MemoryLimit}
		case causeContext:
			return ctx.Err()
		}
		return &TimeoutError{Limit: s.opts.Timeout}
	}

	var exc *goja.Exception
	if errors.As(runErr, &exc) {
		return &ScriptError{
			Message: exc.Error(),
			Stack:   exc.String(),
		}
	}

	return &ScriptError{Message: runErr.Error()}
}

// copyInto marshals a host value through JSON into the isolate, guaranteeing
// the script receives a detached copy with no live references to host state.
func copyInto(vm *goja.Runtime, v any) (goja.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("copy value into sandbox: %w", err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("copy value into sandbox: %w", err)
	}
	return vm.ToValue(plain), nil
}

// stringify renders one console.log argument: strings verbatim, everything
// else as JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
