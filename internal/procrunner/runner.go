// Package procrunner spawns linter and formatter subprocesses in their own
// process group so that an entire tree of helper processes (shell wrappers,
// forked children) can be cancelled with one signal.
package procrunner

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"
)

// Stdio selects which of the child's standard streams the caller wants
// piped back for reading. Exactly one of stdout/stderr is the "ingest"
// channel; the other is discarded, matching §4.5.
type Stdio int

const (
	// IngestStdout pipes stdout to the caller and discards stderr.
	IngestStdout Stdio = iota
	// IngestStderr pipes stderr to the caller and discards stdout.
	IngestStderr
)

// Spec describes a subprocess to launch.
type Spec struct {
	Program        string
	Args           []string
	Dir            string
	Ingest         Stdio
	UseStdin       bool // if true, Proc.Stdin is non-nil and must be written then closed by the caller
	CaptureStderr  bool // if true and Ingest is stdout, stderr is buffered (not discarded) for later inspection
}

// Proc is a running (or exited) child process plus its ingest stream.
type Proc struct {
	cmd       *exec.Cmd
	Pid       int
	Stdin     io.WriteCloser // nil unless Spec.UseStdin
	Ingest    io.ReadCloser  // the configured ingest channel (stdout or stderr)
	stderrBuf *bytes.Buffer  // non-nil only when Spec.CaptureStderr was set
}

// Stderr returns the buffered stderr bytes captured alongside an
// IngestStdout run requested with Spec.CaptureStderr. It is empty unless
// that capture was requested, and only meaningful after Wait returns.
func (p *Proc) Stderr() []byte {
	if p.stderrBuf == nil {
		return nil
	}
	return p.stderrBuf.Bytes()
}

// SpawnError wraps a failure to start a subprocess (spec §7 SpawnError).
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Runner spawns processes in new process groups and kills them by pgid.
type Runner struct {
	log *zap.Logger
}

// New creates a Runner.
func New(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// Spawn starts spec.Program. The child's pid is also its process group id
// (configureProcessGroup in process_unix.go). No shell is involved and no environment
// variables are added — the inherited environment passes through unchanged.
func (r *Runner) Spawn(spec Spec) (*Proc, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	configureProcessGroup(cmd)

	var stdin io.WriteCloser
	var err error
	if spec.UseStdin {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, &SpawnError{Program: spec.Program, Err: fmt.Errorf("stdin pipe: %w", err)}
		}
	}

	var ingest io.ReadCloser
	var stderrBuf *bytes.Buffer
	switch spec.Ingest {
	case IngestStdout:
		ingest, err = cmd.StdoutPipe()
		if spec.CaptureStderr {
			stderrBuf = &bytes.Buffer{}
			cmd.Stderr = stderrBuf
		} else {
			cmd.Stderr = io.Discard
		}
	case IngestStderr:
		ingest, err = cmd.StderrPipe()
		cmd.Stdout = io.Discard
	}
	if err != nil {
		closeIfNotNil(stdin)
		return nil, &SpawnError{Program: spec.Program, Err: fmt.Errorf("ingest pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		closeIfNotNil(stdin)
		closeIfNotNil(ingest)
		return nil, &SpawnError{Program: spec.Program, Err: err}
	}

	return &Proc{
		cmd:       cmd,
		Pid:       cmd.Process.Pid,
		Stdin:     stdin,
		Ingest:    ingest,
		stderrBuf: stderrBuf,
	}, nil
}

// Wait reaps the process after the caller has finished reading its ingest
// channel. The orchestrator, not the runner, is responsible for calling
// this — spawning and killing are decoupled from reaping per §4.5.
func (p *Proc) Wait() error {
	return p.cmd.Wait()
}

// Kill sends SIGKILL to the process group. It is idempotent: killing an
// already-reaped group logs at debug level and returns nil.
func (r *Runner) Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := killProcessGroup(pid); err != nil {
		if isNoSuchProcess(err) {
			r.log.Debug("kill of already-reaped process group", zap.Int("pid", pid))
			return nil
		}
		return err
	}
	return nil
}

func closeIfNotNil(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}
