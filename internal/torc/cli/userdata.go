package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

func newUserDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user-data",
		Short: "Manage structured (JSON) artifacts produced or consumed by jobs",
	}
	cmd.AddCommand(newUserDataCreateCmd(), newUserDataListCmd())
	return cmd
}

func newUserDataCreateCmd() *cobra.Command {
	var name, dataJSON string
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "create <workflow-id>",
		Short: "Register a user data artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			id, err := c.CreateUserData(ctx, wfID, &domain.UserData{Name: name, DataJSON: dataJSON, IsEphemeral: ephemeral})
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("created user data %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user data name")
	cmd.Flags().StringVar(&dataJSON, "data", "{}", "JSON payload")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "discard this data on reinitialize")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newUserDataListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List registered user data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfID, err := workflowIDArg(args)
			if err != nil {
				return fail(err)
			}
			c, err := newClient()
			if err != nil {
				return fail(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			rows, err := c.ListUserData(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(rows, func() {
				for _, d := range rows {
					fmt.Printf("%-6d %-24s ephemeral=%v\n", d.ID, d.Name, d.IsEphemeral)
				}
			})
		},
	}
}
