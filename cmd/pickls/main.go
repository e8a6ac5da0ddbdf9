// Command pickls is the language-agnostic LSP backend: run with no
// arguments to serve over stdio, as an editor would launch it.
package main

import (
	"os"

	"github.com/pickls/pickls/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
