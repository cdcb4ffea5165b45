package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openstage/verity/internal/config"
	"github.com/openstage/verity/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	ScriptID string
	Limit    int
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a run, or list recent runs",
		Long: `Show a run, or list recent runs.

With a run id, prints the full run record including trace steps and
assertion results. Without arguments, lists recent runs most recent first.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showRun(opts, cmd, args[0])
			}
			return listRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ScriptID, "script", "", "only list runs of this script")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func openStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading configuration", err)
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	return st, nil
}

func showRun(opts *ShowOptions, cmd *cobra.Command, id string) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
		}
		return WrapExitError(ExitCommandError, "reading run", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(w).Encode(run)
	}
	printRun(w, run)
	return nil
}

func listRuns(opts *ShowOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(opts.ScriptID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing runs", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(w).Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %-7s  script=%s entity=%s passed=%d failed=%d\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.Status,
			run.ScriptID, run.EntityID, run.PassedCount, run.FailedCount)
	}
	return nil
}

func printRun(w io.Writer, run store.Run) {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Script:  %s\n", run.ScriptID)
	fmt.Fprintf(w, "  Entity:  %s\n", run.EntityID)
	fmt.Fprintf(w, "  Status:  %s (%d passed, %d failed)\n", run.Status, run.PassedCount, run.FailedCount)
	fmt.Fprintf(w, "  Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "  Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error:   %s\n", run.ErrorMessage)
	}
	if len(run.TraceSteps) > 0 {
		fmt.Fprintln(w, "  Steps:")
		for _, step := range run.TraceSteps {
			fmt.Fprintf(w, "    %d. [%s] %s\n", step.Ordinal, step.Kind, step.Title)
		}
	}
	if len(run.AssertionResults) > 0 {
		fmt.Fprintln(w, "  Assertions:")
		for _, ar := range run.AssertionResults {
			fmt.Fprintf(w, "    %s %s: expected %v, received %v\n",
				passLabel(ar), ar.Label, ar.Expected, ar.Received)
		}
	}
}
