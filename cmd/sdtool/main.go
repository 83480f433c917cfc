package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/andreyvit/sdstore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != cli.ExitFailure {
			fmt.Fprintln(os.Stderr, "sdtool:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
