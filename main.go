package main

import (
	"fmt"
	"os"

	"github.com/spinnaker/buildtool/cmd/cli"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

// main executes the buildtool command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintln(os.Stderr, buildtoolerrors.FormatErrorLine(executionError))
		os.Exit(1)
	}
}
