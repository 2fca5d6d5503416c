package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage orchestrator sessions",
	}
	cmd.AddCommand(newSessionOpenCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionSendCmd())
	cmd.AddCommand(newSessionCloseCmd())
	return cmd
}

func newSessionOpenCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "open <working-dir>",
		Short: "Open a new session rooted at working-dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := newAdminClient().openSession(args[0], title)
			if err != nil {
				return err
			}
			fmt.Println(view.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "optional session title")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := newAdminClient().listSessions()
			if err != nil {
				return err
			}
			fmt.Print(renderSessionTable(views))
			return nil
		},
	}
}

func newSessionSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <session-id> <data>",
		Short: "Send input to a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAdminClient().sendInput(args[0], args[1])
			if err != nil {
				return err
			}
			if resp.Delivered {
				return nil
			}
			if resp.Intent != nil {
				fmt.Fprintf(os.Stdout, "%s (confidence %.2f): %s\n", resp.Intent.Action, resp.Intent.Confidence, resp.Intent.Summary)
			}
			return nil
		},
	}
}

func newSessionCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient().closeSession(args[0])
		},
	}
}
