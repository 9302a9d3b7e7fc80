package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/domain"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage file artifacts referenced by jobs",
	}
	cmd.AddCommand(newFileCreateCmd(), newFileListCmd(), newFileRequiredExistingCmd())
	return cmd
}

func newFileCreateCmd() *cobra.Command {
	var name, path string
	cmd := &cobra.Command{
		Use:   "create <workflow-id>",
		Short: "Register a file artifact",
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
			id, err := c.CreateFile(ctx, wfID, &domain.File{Name: name, Path: path})
			if err != nil {
				return fail(err)
			}
			return printResult(map[string]int64{"id": id}, func() {
				fmt.Printf("created file %d\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "file name")
	cmd.Flags().StringVar(&path, "path", "", "filesystem path")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newFileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow-id>",
		Short: "List registered files",
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
			files, err := c.ListFiles(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(files, func() {
				for _, f := range files {
					fmt.Printf("%-6d %-24s %s\n", f.ID, f.Name, f.Path)
				}
			})
		},
	}
}

func newFileRequiredExistingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "required-existing <workflow-id>",
		Short: "List input files with no producing job",
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
			files, err := c.ListRequiredExistingFiles(ctx, wfID)
			if err != nil {
				return fail(err)
			}
			return printResult(files, func() {
				for _, f := range files {
					fmt.Printf("%-6d %-24s %s\n", f.ID, f.Name, f.Path)
				}
			})
		},
	}
}
