// anthropic-go is a command-line client for the Anthropic Messages API.
package main

import (
	"errors"
	"os"

	"github.com/petal-labs/anthropic-go/cli/commands"
)

// ExitCoder is an interface for errors that have an exit code.
type ExitCoder interface {
	ExitCode() int
}

func main() {
	if err := commands.Execute(); err != nil {
		var ec ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}
