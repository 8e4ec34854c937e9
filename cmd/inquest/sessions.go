package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inquestlabs/inquest/internal/session"
)

// sessionsCommand groups conversation management subcommands.
func sessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(sessionsListCommand())
	cmd.AddCommand(sessionsClearCommand())
	return cmd
}

// sessionsListCommand lists locally saved conversations, newest first.
func sessionsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewStore()
			if err != nil {
				return err
			}
			return printSessionList(os.Stdout, store, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum conversations to list")
	return cmd
}

// printSessionList writes one line per conversation with a short preview.
func printSessionList(out io.Writer, store *session.Store, limit int) error {
	sessions, err := store.ListSessions(limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved conversations.")
		return nil
	}
	for _, sessionID := range sessions {
		fmt.Fprintf(out, "%s  %s\n", sessionID, sessionPreview(store, sessionID))
	}
	return nil
}

// sessionPreview returns the first user message as a short label.
func sessionPreview(store *session.Store, sessionID string) string {
	records, err := store.LoadRecords(sessionID)
	if err != nil {
		return ""
	}
	for _, record := range records {
		if record.Role == "user" && record.Content != "" {
			return summarizeForDisplay(record.Content, 60)
		}
	}
	return ""
}

// sessionsClearCommand removes saved conversations.
func sessionsClearCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete saved conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewStore()
			if err != nil {
				return err
			}
			if all {
				return clearAllSessions(os.Stdout, store)
			}
			if len(args) != 1 {
				return errors.New("pass a session id or --all")
			}
			if err := store.RemoveSession(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Removed %s.\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every saved conversation")
	return cmd
}

// clearAllSessions removes every saved transcript.
func clearAllSessions(out io.Writer, store *session.Store) error {
	sessions, err := store.ListSessions(0)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, sessionID := range sessions {
		if err := store.RemoveSession(sessionID); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Removed %d conversations.\n", len(sessions))
	return nil
}
