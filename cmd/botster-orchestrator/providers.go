package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect the tool/MCP provider registry",
	}
	cmd.AddCommand(newProvidersListCmd())
	cmd.AddCommand(newProvidersRankCmd())
	return cmd
}

func newProvidersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := newAdminClient().listProviders()
			if err != nil {
				return err
			}
			fmt.Print(renderProviderTable(views))
			return nil
		},
	}
}

func newProvidersRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <session-id>",
		Short: "Show a session's current ranked capabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caps, err := newAdminClient().rankCapabilities(args[0])
			if err != nil {
				return err
			}
			fmt.Print(renderCapabilityTable(caps))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newAdminClient().status()
			if err != nil {
				return err
			}
			fmt.Print(renderStatus(status))
			return nil
		},
	}
}
