package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstage/verity/internal/entity"
	"github.com/openstage/verity/internal/sandbox"
	"github.com/openstage/verity/internal/store"
	"github.com/openstage/verity/internal/trace"
)

func testRunner(t *testing.T, opts sandbox.Options, ids IDGenerator) (*Runner, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "verity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	caps := sandbox.Capabilities{
		Get: func(_ context.Context, entityType, id string) (entity.Fields, error) {
			return entity.Fields{"_id": id, "Gross Amount": 104.0}, nil
		},
	}
	return New(st, sandbox.New(caps, opts), ids), st
}

func saveScript(t *testing.T, st *store.Store, id, source string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.SaveScript(store.Script{
		ID: id, Name: id, EntityType: "order", Source: source,
		CreatedAt: now, UpdatedAt: now,
	}))
}

// waitForTerminal polls until the run reaches a terminal state.
func waitForTerminal(t *testing.T, r *Runner, id string) store.Run {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := r.Poll(id)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal state", id)
	return store.Run{}
}

const passingScript = `
	var order = getEntity("order", ENTITY_ID);
	console.log('__TRACE__' + JSON.stringify({
		step: 1, type: "fetch", title: "Load order",
		data: {entity: "order", record: order}
	}));
	console.log('__TRACE__' + JSON.stringify({
		step: 2, type: "assertion", title: "Check gross",
		data: {results: [{label: "gross", expected: 104, received: order["Gross Amount"], pass: true}]}
	}));
	console.log('__RESULT__' + JSON.stringify({
		results: [{label: "gross", expected: 104, received: 104, pass: true}],
		passed: 1, failed: 0
	}));
`

func TestStart_MissingInputs(t *testing.T) {
	r, _ := testRunner(t, sandbox.Options{}, nil)

	_, err := r.Start(context.Background(), "", "order-1")
	assert.True(t, IsMissingInput(err))

	_, err = r.Start(context.Background(), "s1", "")
	assert.True(t, IsMissingInput(err))
}

func TestStart_UnknownScript(t *testing.T) {
	r, _ := testRunner(t, sandbox.Options{}, nil)

	_, err := r.Start(context.Background(), "ghost", "order-1")
	assert.ErrorIs(t, err, store.ErrScriptNotFound)
}

func TestStart_PassingRun(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", passingScript)

	run, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, store.StatusRunning, run.Status)

	final := waitForTerminal(t, r, "run-1")
	assert.Equal(t, store.StatusPassed, final.Status)
	assert.Equal(t, 1, final.PassedCount)
	assert.Equal(t, 0, final.FailedCount)
	require.Len(t, final.TraceSteps, 2)
	assert.Equal(t, trace.KindFetch, final.TraceSteps[0].Kind)
	assert.Equal(t, trace.KindAssertion, final.TraceSteps[1].Kind)
	require.Len(t, final.AssertionResults, 1)
	assert.True(t, final.AssertionResults[0].Pass)
	assert.NotNil(t, final.FinishedAt)
}

func TestStart_FailingAssertionRun(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", `
		console.log('__RESULT__' + JSON.stringify({
			results: [{label: "gross", expected: 100, received: 104, pass: false}],
			passed: 0, failed: 1
		}));
	`)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)

	final := waitForTerminal(t, r, "run-1")
	assert.Equal(t, store.StatusFailed, final.Status)
	assert.Equal(t, 1, final.FailedCount)
	assert.Empty(t, final.ErrorMessage)
}

func TestStart_CrashKeepsPartialTrace(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", `
		console.log('__TRACE__' + JSON.stringify({
			step: 1, type: "calculation", title: "Tickets base",
			data: {formula: "(fa + fixed) / d", value: 110.84}
		}));
		throw new Error("kaboom");
	`)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)

	final := waitForTerminal(t, r, "run-1")
	assert.Equal(t, store.StatusError, final.Status)
	assert.Contains(t, final.ErrorMessage, "kaboom")
	require.Len(t, final.TraceSteps, 1, "evidence before the crash survives")
	assert.Equal(t, trace.KindCalculation, final.TraceSteps[0].Kind)
}

func TestStart_NoVerdict(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", `console.log("ran to completion, asserted nothing");`)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)

	final := waitForTerminal(t, r, "run-1")
	assert.Equal(t, store.StatusError, final.Status)
	assert.Equal(t, trace.NoVerdictDiagnostic, final.ErrorMessage)
}

func TestStart_MalformedTraceLine(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", `
		console.log('__TRACE__' + JSON.stringify({
			step: 1, type: "fetch", title: "ok",
			data: {entity: "order", record: {}}
		}));
		console.log('__TRACE__{not json');
		console.log('__RESULT__' + JSON.stringify({results: [], passed: 1, failed: 0}));
	`)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)

	final := waitForTerminal(t, r, "run-1")
	assert.Equal(t, store.StatusError, final.Status)
	assert.Contains(t, final.ErrorMessage, "protocol error")
	require.Len(t, final.TraceSteps, 1, "the valid step is kept")
}

func TestStart_Timeout(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{Timeout: 100 * time.Millisecond}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", `for (;;) {}`)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)

	final := waitForTerminal(t, r, "run-1")
	assert.Equal(t, store.StatusError, final.Status)
	assert.Contains(t, final.ErrorMessage, "time limit")
}

func TestStart_TerminalStateImmutable(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", passingScript)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)
	final := waitForTerminal(t, r, "run-1")

	err = st.FinishRun("run-1", store.Outcome{Status: store.StatusError}, time.Now())
	assert.ErrorIs(t, err, store.ErrRunTerminal)

	again, err := r.Poll("run-1")
	require.NoError(t, err)
	assert.Equal(t, final.Status, again.Status)
}

func TestExec_OneShot(t *testing.T) {
	r, _ := testRunner(t, sandbox.Options{}, nil)

	out := r.Exec(context.Background(), passingScript, "order-1")
	assert.Equal(t, store.StatusPassed, out.Status)
	assert.Equal(t, 1, out.PassedCount)
	assert.Contains(t, out.Logs, "__RESULT__")
}

func TestWait_BlocksUntilRunsFinish(t *testing.T) {
	r, st := testRunner(t, sandbox.Options{}, NewFixedGenerator("run-1"))
	saveScript(t, st, "s1", passingScript)

	_, err := r.Start(context.Background(), "s1", "order-1")
	require.NoError(t, err)

	r.Wait()

	final, err := r.Poll("run-1")
	require.NoError(t, err)
	assert.True(t, final.Status.Terminal())
}
