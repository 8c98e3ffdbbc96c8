// Command vacc runs the virtual accelerator.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/vacc/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		// Commands that failed through the formatter have already reported
		// the error; usage errors from cobra have not.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
