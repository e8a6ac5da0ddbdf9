package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command. Invoked with no subcommand, it
// runs the language server directly — editors launch pickls by spawning the
// binary itself, not a "pickls lsp" subcommand — but "pickls lsp" is kept as
// an explicit alias for scripting and manual debugging.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pickls",
		Short: "A language-agnostic LSP backend for CLI linters, formatters and LLM assist",
		Long: color.CyanString(`pickls - linters and formatters, any language, one LSP server

pickls wraps arbitrary command-line linters and formatters as a Language
Server Protocol backend: configure a regex per linter to turn its stdout or
stderr into diagnostics, wire up formatter chains, and optionally add a
ctags-based workspace symbol search and an LLM-backed inline-assist code
action. No compiler, no per-language plugin — just processes and pattern
matching.

Run with no arguments to start the server over stdio, as your editor does.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLSP,
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewLSPCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the pickls version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Print("pickls version: ")
			valueColor.Println(Version)

			titleColor.Print("Git commit: ")
			valueColor.Println(GitCommit)

			titleColor.Print("Build date: ")
			valueColor.Println(BuildDate)

			titleColor.Print("Go version: ")
			valueColor.Println(goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
