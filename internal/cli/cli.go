// Package cli provides the command-line interface for cortexmarket
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/cortexmarket/internal/service"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitInvalidInput = 2
)

// Execute runs the root command and exits with its status code.
func Execute() {
	os.Exit(Run(os.Args[1:]))
}

// Run executes the CLI with args and returns the process exit code.
func Run(args []string) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, terminal.InterruptErr):
		return exitOK
	case service.IsInvalidInput(err), errors.Is(err, errUsage):
		return exitInvalidInput
	default:
		return exitFailure
	}
}
