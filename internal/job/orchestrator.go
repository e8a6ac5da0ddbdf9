// Package job implements the per-document job orchestrator (spec §4.8): on
// every didOpen/didChange it kills whatever linter processes are still
// running for that URI, then spawns a fresh set and wires their output
// through the parser into the diagnostic coherence engine.
package job

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	lspuri "go.lsp.dev/uri"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/diagnostics"
	"github.com/pickls/pickls/internal/document"
	"github.com/pickls/pickls/internal/lint"
	"github.com/pickls/pickls/internal/procrunner"
	"github.com/pickls/pickls/internal/workspace"
)

const (
	filenamePlaceholder    = "$filename"
	tmpFilenamePlaceholder = "$tmpfilename"
)

type inflight struct {
	pid int
}

// Orchestrator owns the URI → in-flight job set mapping.
type Orchestrator struct {
	mu        sync.Mutex
	sets      map[string][]inflight
	runner    *procrunner.Runner
	ws        *workspace.Workspace
	engine    *diagnostics.Engine
	canon     *lint.Canonicalizer
	log       *zap.Logger
}

// New builds an Orchestrator wired to the given collaborators.
func New(runner *procrunner.Runner, ws *workspace.Workspace, engine *diagnostics.Engine, canon *lint.Canonicalizer, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		sets:   make(map[string][]inflight),
		runner: runner,
		ws:     ws,
		engine: engine,
		canon:  canon,
		log:    log,
	}
}

// Schedule supersedes any jobs already running for uri and spawns a fresh
// set of linters from lang. It never blocks on the supersession kills or on
// the newly spawned linters finishing — all of that continues on its own
// goroutines, matching the "fire and forget" cancellation described in
// spec §4.8.
func (o *Orchestrator) Schedule(uri string, doc document.Record, lang config.LanguageConfig) {
	o.killSet(uri)

	if len(lang.Linters) == 0 {
		return
	}

	docPath := lspuri.URI(uri).Filename()
	root := o.ws.ResolveRoot(docPath, lang.RootMarkers)
	docCanonical := o.canon.Canonicalize(root, docPath)

	var set []inflight
	maxLinterCount := len(lang.Linters)

	for _, lc := range lang.Linters {
		if lc.Pattern == nil {
			continue // ConfigError already logged at load time; skip for this session.
		}
		pid, ok := o.spawnOne(uri, doc, lc, root, docCanonical, maxLinterCount)
		if ok {
			set = append(set, inflight{pid: pid})
		}
	}

	o.mu.Lock()
	o.sets[uri] = set
	o.mu.Unlock()
}

func (o *Orchestrator) spawnOne(uri string, doc document.Record, lc config.LinterConfig, root, docCanonical string, maxLinterCount int) (int, bool) {
	args, tmpPath, err := buildArgs(lc.Args, doc.Text, docCanonical)
	if err != nil {
		o.log.Warn("failed to prepare linter temp file, skipping", zap.String("linter", lc.Program), zap.Error(err))
		return 0, false
	}

	ingest := procrunner.IngestStdout
	if lc.UseStderr {
		ingest = procrunner.IngestStderr
	}

	proc, err := o.runner.Spawn(procrunner.Spec{
		Program:  lc.Program,
		Args:     args,
		Dir:      root,
		Ingest:   ingest,
		UseStdin: lc.UseStdin,
	})
	if err != nil {
		o.log.Warn("linter failed to spawn", zap.String("linter", lc.Program), zap.Error(err))
		removeTmp(tmpPath)
		return 0, false
	}

	if lc.UseStdin {
		go func() {
			_, _ = io.WriteString(proc.Stdin, doc.Text)
			_ = proc.Stdin.Close()
		}()
	}

	parser, err := lint.NewParser(lint.Config{
		LinterName:       lc.Program,
		Pattern:          lc.Pattern,
		FilenameGroup:    lc.FilenameGroup,
		LineGroup:        lc.LineGroup,
		StartColGroup:    lc.StartColGroup,
		EndColGroup:      lc.EndColGroup,
		SeverityGroup:    lc.SeverityGroup,
		DescriptionGroup: lc.DescriptionGroup,
	}, o.canon, o.log)
	if err != nil {
		o.log.Warn("linter config invalid, skipping", zap.String("linter", lc.Program), zap.Error(err))
		removeTmp(tmpPath)
		_ = proc.Ingest.Close()
		go func() { _ = proc.Wait() }()
		return 0, false
	}

	go o.ingestAndPublish(uri, doc.Version, maxLinterCount, root, docCanonical, lc.Program, parser, proc, tmpPath)

	return proc.Pid, true
}

func (o *Orchestrator) ingestAndPublish(uri string, version int32, maxLinterCount int, root, docCanonical, linterName string, parser *lint.Parser, proc *procrunner.Proc, tmpPath string) {
	var diags []lint.Diagnostic
	for d := range parser.Stream(proc.Ingest, root, docCanonical) {
		diags = append(diags, d)
	}
	_ = proc.Wait()
	removeTmp(tmpPath)

	o.engine.Update(uri, linterName, maxLinterCount, version, diags)
}

// killSet kills every process group still tracked for uri and forgets them.
// Kills are fire-and-forget: the caller does not wait for the group to
// actually exit.
func (o *Orchestrator) killSet(uri string) {
	o.mu.Lock()
	set := o.sets[uri]
	delete(o.sets, uri)
	o.mu.Unlock()

	for _, j := range set {
		pid := j.pid
		go func() {
			if err := o.runner.Kill(pid); err != nil {
				o.log.Debug("failed to kill superseded linter process group", zap.Int("pid", pid), zap.Error(err))
			}
		}()
	}
}

// Cancel tears down any in-flight job set for uri without scheduling a
// replacement (used on didClose).
func (o *Orchestrator) Cancel(_ context.Context, uri string) {
	o.killSet(uri)
}

// buildArgs substitutes $filename and $tmpfilename in args. If $tmpfilename
// is present, a uniquely named temp file holding text is created and its
// path is substituted in; the caller must removeTmp it once the ingest
// loop has finished reading from the spawned process.
func buildArgs(args []string, text, filename string) ([]string, string, error) {
	needsTmp := false
	for _, a := range args {
		if strings.Contains(a, tmpFilenamePlaceholder) {
			needsTmp = true
			break
		}
	}

	var tmpPath string
	if needsTmp {
		f, err := os.CreateTemp("", "pickls-"+uuid.NewString())
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
		a = strings.ReplaceAll(a, filenamePlaceholder, filename)
		a = strings.ReplaceAll(a, tmpFilenamePlaceholder, tmpPath)
		out[i] = a
	}
	return out, tmpPath, nil
}

func removeTmp(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
