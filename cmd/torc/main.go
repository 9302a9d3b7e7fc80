package main

import (
	"os"

	"github.com/nrel/torc/internal/torc/cli"
)

// Error rendering (plain text or --json) happens inside cli itself, since
// the format depends on a flag cobra only finishes parsing mid-Execute;
// main just turns any error into a non-zero exit code.
func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
