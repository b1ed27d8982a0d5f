// Command apiary reconstructs play sessions from game telemetry exports and
// classifies how players changed the programs of their units.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/apiary/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
