package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openstage/verity/internal/config"
	"github.com/openstage/verity/internal/remote"
	"github.com/openstage/verity/internal/runner"
	"github.com/openstage/verity/internal/sandbox"
	"github.com/openstage/verity/internal/store"
	"github.com/openstage/verity/internal/trace"
)

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <script-file> <entity-id>",
		Short: "Execute a verification script once, without the HTTP service",
		Long: `Execute a verification script once, without the HTTP service.

Reads the script from a file, runs it against the configured remote API,
and prints the trace steps and assertion results.

Example:
  verity exec order-totals.js 1697040488391x871963358486331100`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runExec(opts *RootOptions, cmd *cobra.Command, scriptPath, entityID string) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading script", err)
	}

	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token)
	box := sandbox.New(sandbox.Capabilities{
		Get:    client.Get,
		Search: client.Search,
	}, sandbox.Options{
		Timeout:     cfg.Timeout(),
		MemoryLimit: cfg.MemoryLimit(),
	})

	// One-shot execution never touches the database.
	out := runner.New(nil, box, nil).Exec(cmd.Context(), string(source), entityID)

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		if err := json.NewEncoder(w).Encode(out); err != nil {
			return WrapExitError(ExitCommandError, "encoding output", err)
		}
	} else {
		printOutcome(w, out)
	}

	switch out.Status {
	case store.StatusPassed:
		return nil
	case store.StatusFailed:
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d assertion(s) failed", out.FailedCount))
	default:
		return NewExitError(ExitFailure, out.ErrorMessage)
	}
}

func printOutcome(w io.Writer, out store.Outcome) {
	if len(out.TraceSteps) > 0 {
		fmt.Fprintln(w, "Steps:")
		for _, step := range out.TraceSteps {
			fmt.Fprintf(w, "  %d. [%s] %s\n", step.Ordinal, step.Kind, step.Title)
		}
	}
	if len(out.AssertionResults) > 0 {
		fmt.Fprintln(w, "Assertions:")
		for _, ar := range out.AssertionResults {
			fmt.Fprintf(w, "  %s %s: expected %v, received %v\n",
				passLabel(ar), ar.Label, ar.Expected, ar.Received)
		}
	}
	fmt.Fprintf(w, "Result: %s (%d passed, %d failed)\n",
		out.Status, out.PassedCount, out.FailedCount)
	if out.ErrorMessage != "" {
		fmt.Fprintf(w, "Error: %s\n", out.ErrorMessage)
	}
}

func passLabel(ar trace.AssertionResult) string {
	if ar.Pass {
		return "PASS"
	}
	return "FAIL"
}
