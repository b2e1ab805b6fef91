package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tmacphail/suzerain/internal/savegame"
)

// SessionList holds the sessions in a save database.
type SessionList struct {
	Sessions []savegame.Session `json:"sessions"`
}

func (l SessionList) String() string {
	if len(l.Sessions) == 0 {
		return "no sessions"
	}
	var b strings.Builder
	for _, s := range l.Sessions {
		fmt.Fprintf(&b, "%s  tick %-5d  %s\n", s.Token, s.LastTick, s.Scenario)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewSessionsCommand creates the sessions command group.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and move saved sessions",
	}

	cmd.AddCommand(newSessionsListCommand(rootOpts))
	cmd.AddCommand(newSessionsExportCommand(rootOpts))
	cmd.AddCommand(newSessionsImportCommand(rootOpts))
	return cmd
}

func newSessionsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List saved sessions in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(rootOpts, cmd)
		},
	}
}

func newSessionsExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <session-token> <file>",
		Short: "Export a session's command log to a compressed file",
		Long: `Write a session's scenario reference and full command log to a
compressed archive. The archive carries everything needed to rebuild
the session on another host with "sessions import".`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsExport(rootOpts, args[0], args[1], cmd)
		},
	}
}

func newSessionsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <file>",
		Short:         "Import a session archive as a new session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsImport(rootOpts, args[0], cmd)
		},
	}
}

func runSessionsList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	store, err := savegame.Open(opts.SavePath)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to open save: %v", err))
	}
	defer store.Close()

	sessions, err := store.ListSessions(cmd.Context())
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to list sessions: %v", err))
	}

	return formatter.Success(SessionList{Sessions: sessions})
}

func runSessionsExport(opts *RootOptions, token, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	store, err := savegame.Open(opts.SavePath)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to open save: %v", err))
	}
	defer store.Close()

	f, err := os.Create(path)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to create archive: %v", err))
	}

	if err := store.Export(cmd.Context(), token, f); err != nil {
		f.Close()
		os.Remove(path)
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to export session: %v", err))
	}
	if err := f.Close(); err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to close archive: %v", err))
	}

	return formatter.Success(fmt.Sprintf("exported %s to %s", token, path))
}

func runSessionsImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	store, err := savegame.Open(opts.SavePath)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to open save: %v", err))
	}
	defer store.Close()

	f, err := os.Open(path)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to open archive: %v", err))
	}
	defer f.Close()

	token, err := store.Import(cmd.Context(), f)
	if err != nil {
		return formatter.Error(ExitFailure, fmt.Sprintf("failed to import session: %v", err))
	}

	return formatter.Success(fmt.Sprintf("imported %s as session %s", path, token))
}
