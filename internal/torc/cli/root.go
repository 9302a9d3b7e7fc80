// Package cli is torc's cobra command tree: one subcommand group per
// resource family (workflows, jobs, files, user-data, results,
// resource-requirements, actions, compute-nodes, events, slurm, logs,
// reports), grounded on the teacher's internal/rnx command-group layout
// (one package per resource, wired into a shared root command with
// persistent --config/--node-style connection flags).
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nrel/torc/internal/torc/client"
	"github.com/nrel/torc/internal/torc/cliconfig"
	"github.com/nrel/torc/internal/torc/torcerr"
)

var (
	configPath string
	serverName string
	outputJSON bool

	cfg *cliconfig.Config
)

var rootCmd = &cobra.Command{
	Use:   "torc",
	Short: "torc - command line interface to a torcd workflow orchestrator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = cliconfig.Load(configPath)
		return err
	},
}

// Execute runs the root command; it is the entire body of cmd/torc/main.go.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to torc client config file")
	rootCmd.PersistentFlags().StringVar(&serverName, "server", "", "named server from the config file (defaults to default_server)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "emit machine-readable JSON instead of human-readable text")

	rootCmd.AddCommand(newWorkflowsCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newUserDataCmd())
	rootCmd.AddCommand(newResourceRequirementsCmd())
	rootCmd.AddCommand(newActionsCmd())
	rootCmd.AddCommand(newComputeNodesCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newSlurmCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newReportsCmd())
}

// newClient builds an HTTP client for the currently selected server.
func newClient() (*client.Client, error) {
	srv, err := cfg.Server(serverName)
	if err != nil {
		return nil, err
	}
	return client.New(client.Config{
		BaseURL:  srv.URL,
		Username: srv.Username,
		Password: srv.Password,
		Token:    srv.Token,
	})
}

// printResult renders v as indented JSON (--json) or delegates to human,
// which is called only in the default text mode.
func printResult(v any, human func()) error {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}

// fail renders err in the selected output mode and returns an error cobra
// will turn into a non-zero exit code (spec §6: "non-zero exit code and a
// structured error on stderr in --format=json mode").
func fail(err error) error {
	if outputJSON {
		envelope := struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}{}
		envelope.Error.Kind = string(torcerr.KindOf(err))
		envelope.Error.Message = err.Error()
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(envelope)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return silentError{err}
}

// silentError suppresses cobra's own "Error: ..." re-print (we already
// printed it above in whichever format was requested) while still
// propagating a non-nil error so RunE causes a non-zero exit.
type silentError struct{ err error }

func (s silentError) Error() string { return s.err.Error() }

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}
