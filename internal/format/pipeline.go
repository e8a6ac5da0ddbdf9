// Package format runs a document through its language's configured chain of
// external formatters (spec §4.9), feeding each formatter's stdout to the
// next, and surfaces the final text as a single full-document edit.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/procrunner"
)

// Error reports that a formatter in the chain aborted it; the caller must
// surface this to the client and leave the document untouched.
type Error struct {
	Program string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formatter %s: %s", e.Program, e.Reason)
}

// Pipeline runs a LanguageConfig's formatter chain over document text.
type Pipeline struct {
	runner *procrunner.Runner
	log    *zap.Logger
}

// New creates a Pipeline backed by runner.
func New(runner *procrunner.Runner, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{runner: runner, log: log}
}

// Run feeds text through formatters in order and returns the final text. An
// empty formatters slice returns text unchanged. root is the working
// directory for every formatter invocation; filename is substituted for
// $filename in argument templates.
func (p *Pipeline) Run(formatters []config.FormatterConfig, text, filename, root string) (string, error) {
	current := text
	for _, f := range formatters {
		next, err := p.runOne(f, current, filename, root)
		if err != nil {
			return "", err
		}
		current = next
	}
	return current, nil
}

func (p *Pipeline) runOne(f config.FormatterConfig, text, filename, root string) (string, error) {
	args, tmpPath, err := substitute(f.Args, text, filename)
	if err != nil {
		return "", &Error{Program: f.Program, Reason: fmt.Sprintf("preparing temp file: %v", err)}
	}
	defer removeIfSet(tmpPath)

	proc, err := p.runner.Spawn(procrunner.Spec{
		Program:       f.Program,
		Args:          args,
		Dir:           root,
		Ingest:        procrunner.IngestStdout,
		UseStdin:      f.UseStdin,
		CaptureStderr: f.StderrIndicatesError,
	})
	if err != nil {
		return "", &Error{Program: f.Program, Reason: err.Error()}
	}

	if f.UseStdin {
		go func() {
			_, _ = io.WriteString(proc.Stdin, text)
			_ = proc.Stdin.Close()
		}()
	}

	out, readErr := io.ReadAll(proc.Ingest)
	waitErr := proc.Wait()

	if f.StderrIndicatesError {
		if len(proc.Stderr()) > 0 {
			return "", &Error{Program: f.Program, Reason: strings.TrimSpace(string(proc.Stderr()))}
		}
		if waitErr != nil {
			return "", &Error{Program: f.Program, Reason: waitErr.Error()}
		}
	}
	if readErr != nil {
		return "", &Error{Program: f.Program, Reason: readErr.Error()}
	}

	return string(out), nil
}

func substitute(args []string, text, filename string) ([]string, string, error) {
	needsTmp := false
	for _, a := range args {
		if strings.Contains(a, "$tmpfilename") {
			needsTmp = true
			break
		}
	}

	var tmpPath string
	if needsTmp {
		f, err := os.CreateTemp("", "pickls-fmt-"+uuid.NewString())
		if err != nil {
			return nil, "", err
		}
		if _, err := f.WriteString(text); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return nil, "", err
		}
		tmpPath = f.Name()
	}

	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, "$filename", filename)
		a = strings.ReplaceAll(a, "$tmpfilename", tmpPath)
		out[i] = a
	}
	return out, tmpPath, nil
}

func removeIfSet(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
