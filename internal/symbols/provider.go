// Package symbols implements the workspace-symbol tag extractor (spec
// §4.10): spawn a ctags-compatible tool, stream its tag output, and filter
// it down to a bounded, query-matched symbol list.
package symbols

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/procrunner"
)

// Kind is a provider-agnostic symbol classification, mapped to an LSP
// SymbolKind by the caller.
type Kind int

const (
	KindVariable Kind = iota
	KindFunction
	KindClass
	KindMethod
	KindModule
)

// Symbol is one tag extracted from the tool's output.
type Symbol struct {
	Name string
	Path string // absolute, resolved against the search root
	Line int    // 1-based
	Kind Kind
}

const defaultMaxSymbols = 250
const defaultTimeout = 10 * time.Second

// tagLine matches "<name>\t<path>\t<n>;\"" optionally followed by a tab and
// a free-text kind field, per §4.10.
var tagLine = regexp.MustCompile(`^([^\t]+)\t([^\t]+)\t(\d+);"(?:\t(.*))?$`)

// Provider spawns the configured tag extractor and filters its output.
type Provider struct {
	runner *procrunner.Runner
	log    *zap.Logger
}

// New creates a Provider backed by runner.
func New(runner *procrunner.Runner, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{runner: runner, log: log}
}

// Search spawns cfg's tool once across every root in roots, streams its
// tags, and returns the symbols whose name matches every whitespace-
// separated token of query (each token compiled as its own regex, per
// §4.10). Every root is passed to the extractor as its own positional
// argument and cfg.Excludes is expanded into one "--exclude=" argument per
// pattern ahead of the root paths, so a single invocation covers the whole
// workspace instead of one subprocess per folder. The search is bounded by
// cfg.TimeoutSecs; on deadline the child is killed and whatever tags were
// collected so far are returned.
func (p *Provider) Search(ctx context.Context, cfg config.SymbolsConfig, roots []string, query string) ([]Symbol, error) {
	matchers, err := compileQuery(query)
	if err != nil {
		return nil, fmt.Errorf("compiling symbol query: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxSymbols := cfg.MaxSymbols
	if maxSymbols <= 0 {
		maxSymbols = defaultMaxSymbols
	}

	args := make([]string, 0, len(cfg.Args)+len(cfg.Excludes)+len(roots))
	args = append(args, cfg.Args...)
	for _, exclude := range cfg.Excludes {
		args = append(args, "--exclude="+exclude)
	}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = root
		}
		args = append(args, abs)
	}

	proc, err := p.runner.Spawn(procrunner.Spec{
		Program: cfg.Program,
		Args:    args,
		Ingest:  procrunner.IngestStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("spawning symbol extractor: %w", err)
	}

	fallbackRoot := ""
	if len(roots) > 0 {
		fallbackRoot = roots[0]
	}

	var results []Symbol
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(proc.Ingest)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			if len(results) >= maxSymbols {
				break
			}
			sym, ok := parseLine(fallbackRoot, sc.Text())
			if !ok {
				continue
			}
			if matchesAll(sym.Name, matchers) {
				results = append(results, sym)
			}
		}
	}()

	select {
	case <-done:
		if len(results) >= maxSymbols {
			// Stop the extractor rather than wait for it to finish writing.
			_ = proc.Ingest.Close()
			if err := p.runner.Kill(proc.Pid); err != nil {
				p.log.Debug("failed to kill symbol extractor", zap.Error(err))
			}
		}
	case <-ctx.Done():
		p.log.Debug("symbol extractor timed out, returning partial results", zap.String("program", cfg.Program))
		_ = proc.Ingest.Close()
		if err := p.runner.Kill(proc.Pid); err != nil {
			p.log.Debug("failed to kill symbol extractor", zap.Error(err))
		}
		<-done
	}
	_ = proc.Wait()

	return results, nil
}

func compileQuery(query string) ([]*regexp.Regexp, error) {
	tokens := strings.Fields(query)
	matchers := make([]*regexp.Regexp, 0, len(tokens))
	for _, tok := range tokens {
		re, err := regexp.Compile(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid query token %q: %w", tok, err)
		}
		matchers = append(matchers, re)
	}
	return matchers, nil
}

func matchesAll(name string, matchers []*regexp.Regexp) bool {
	for _, m := range matchers {
		if !m.MatchString(name) {
			return false
		}
	}
	return true
}

func parseLine(root, line string) (Symbol, bool) {
	m := tagLine.FindStringSubmatch(line)
	if m == nil {
		return Symbol{}, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return Symbol{}, false
	}

	path := m[2]
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if _, err := os.Stat(path); err != nil {
		return Symbol{}, false // unresolvable path, skipped per §4.10
	}

	return Symbol{Name: m[1], Path: path, Line: n, Kind: mapKind(m[4])}, true
}

// mapKind classifies a ctags kind field. Unknown kinds map to Variable;
// function/class/method/module map to their LSP counterparts, matched by
// substring since --fields=+K spells kinds out in full while the bare
// mode emits single-letter abbreviations that this does not attempt to
// special-case beyond the common ones.
func mapKind(raw string) Kind {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "function") || lower == "f":
		return KindFunction
	case strings.Contains(lower, "class") || lower == "c":
		return KindClass
	case strings.Contains(lower, "method") || lower == "m":
		return KindMethod
	case strings.Contains(lower, "module"):
		return KindModule
	default:
		return KindVariable
	}
}
