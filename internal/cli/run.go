package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmacphail/suzerain/internal/harness"
	"github.com/tmacphail/suzerain/internal/savegame"
)

// RunResult holds the outcome of running a script.
type RunResult struct {
	Script   string `json:"script"`
	Ticks    int    `json:"ticks"`
	Executed int    `json:"executed"`
	Digest   string `json:"digest"`
	Session  string `json:"session,omitempty"`
}

func (r RunResult) String() string {
	s := fmt.Sprintf("%s: %d tick(s), %d command(s) executed\ndigest %s",
		r.Script, r.Ticks, r.Executed, r.Digest)
	if r.Session != "" {
		s += fmt.Sprintf("\nsession %s", r.Session)
	}
	return s
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var record bool
	var trace bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a scripted session and check its assertions",
		Long: `Run a script file against its scenario, checking every assertion it
declares. With --record the command log and final digest are persisted
to the save database as a new session, which "replay" can verify later.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], record, trace, cmd)
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "persist the command log as a session")
	cmd.Flags().BoolVar(&trace, "trace", false, "print the event trace")
	return cmd
}

func runRun(opts *RootOptions, path string, record, trace bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	script, err := harness.LoadScript(path)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to load script: %v", err))
	}

	result, err := harness.Run(script)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("run failed: %v", err))
	}
	defer result.Context.Dispose()

	if failures := harness.CheckAssertions(script, result); len(failures) > 0 {
		for _, f := range failures {
			_ = formatter.Error(ExitFailure, f.Error())
		}
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d assertion(s) failed", len(failures))}
	}

	if trace {
		if _, err := cmd.OutOrStdout().Write(result.Recorder.Render()); err != nil {
			return err
		}
	}

	executed := 0
	for _, report := range result.Reports {
		executed += report.Executed
	}

	out := RunResult{
		Script:   script.Name,
		Ticks:    len(result.Reports),
		Executed: executed,
		Digest:   result.Digest,
	}

	if record {
		token, err := recordSession(cmd.Context(), opts.SavePath, script, result)
		if err != nil {
			return formatter.Error(ExitFailure, fmt.Sprintf("failed to record session: %v", err))
		}
		out.Session = token
	}

	return formatter.Success(out)
}

func recordSession(ctx context.Context, savePath string, script *harness.Script, result *harness.Result) (string, error) {
	store, err := savegame.Open(savePath)
	if err != nil {
		return "", err
	}
	defer store.Close()

	token, err := store.CreateSession(ctx, script.Scenario)
	if err != nil {
		return "", err
	}
	if err := store.Checkpoint(ctx, token, result.Pipeline, result.Context); err != nil {
		return "", err
	}
	return token, nil
}
