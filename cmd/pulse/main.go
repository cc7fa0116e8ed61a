// Command pulse runs, validates and inspects pulse chain scenarios.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/pulse/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		var exitErr *cli.ExitError
		// ExitErrors were already reported by the formatter.
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
