// Package lint parses linter output lines into structured diagnostics using
// per-linter regular expressions (spec §4.6).
package lint

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Severity is the canonicalised LSP diagnostic severity.
type Severity string

const (
	SeverityError       Severity = "Error"
	SeverityWarning     Severity = "Warning"
	SeverityHint        Severity = "Hint"
	SeverityInformation Severity = "Information"
)

// NormalizeSeverity canonicalises a raw capture case-insensitively per §3.
// It is idempotent: NormalizeSeverity(string(NormalizeSeverity(s))) ==
// NormalizeSeverity(s).
func NormalizeSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error":
		return SeverityError
	case "warn", "warning":
		return SeverityWarning
	case "hint":
		return SeverityHint
	case "note", "info", "information":
		return SeverityInformation
	default:
		return SeverityError
	}
}

// Position is a zero-based LSP position in UTF-16 code units.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open LSP range.
type Range struct {
	Start Position
	End   Position
}

// Diagnostic is a single parsed finding.
type Diagnostic struct {
	Range    Range
	Severity Severity
	Source   string // linter name (program path)
	Message  string
}

// Config describes how to parse one linter's output. DescriptionGroup is
// nil for "no description capture" (empty message), -1 for "use the
// trimmed input line that follows the matching line", or a positive
// capture-group index.
type Config struct {
	LinterName       string
	Pattern          *regexp.Regexp
	FilenameGroup    int // 0 = not captured
	LineGroup        int // required, must be >= 1
	StartColGroup    int // 0 = not captured
	EndColGroup      int // 0 = not captured
	SeverityGroup    int // 0 = not captured
	DescriptionGroup *int
}

// ConfigError reports a linter pattern/capture-index misconfiguration; the
// linter is skipped for the session per spec §7.
type ConfigError struct {
	LinterName string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("linter %q misconfigured: %s", e.LinterName, e.Reason)
}

// Validate reports a ConfigError for capture indices that cannot possibly
// be satisfied by the compiled pattern, and for an impossible description
// index (anything other than nil, -1, or a positive group number).
func (c Config) Validate() error {
	if c.Pattern == nil {
		return &ConfigError{LinterName: c.LinterName, Reason: "no pattern compiled"}
	}
	n := c.Pattern.NumSubexp()
	if c.LineGroup < 1 || c.LineGroup > n {
		return &ConfigError{LinterName: c.LinterName, Reason: fmt.Sprintf("line capture group %d out of range (pattern has %d groups)", c.LineGroup, n)}
	}
	for name, idx := range map[string]int{"filename": c.FilenameGroup, "start_col": c.StartColGroup, "end_col": c.EndColGroup, "severity": c.SeverityGroup} {
		if idx != 0 && (idx < 1 || idx > n) {
			return &ConfigError{LinterName: c.LinterName, Reason: fmt.Sprintf("%s capture group %d out of range", name, idx)}
		}
	}
	if c.DescriptionGroup != nil {
		d := *c.DescriptionGroup
		if d != -1 && (d < 1 || d > n) {
			return &ConfigError{LinterName: c.LinterName, Reason: fmt.Sprintf("description capture group %d is neither -1 nor a valid group", d)}
		}
	}
	return nil
}

// Canonicalizer resolves and caches canonical absolute paths, so that the
// same (root, raw) pair is not stat'd/symlink-resolved again while it stays
// in the bounded LRU cache; an evicted pair is resolved afresh
// (spec §9's open question: "implementations may cache per-URI").
type Canonicalizer struct {
	cache *lru.Cache
}

const defaultCanonicalizerSize = 4096

// NewCanonicalizer creates a Canonicalizer with a bounded LRU cache.
func NewCanonicalizer() *Canonicalizer {
	cache, err := lru.New(defaultCanonicalizerSize)
	if err != nil {
		// Only fails for a non-positive size, which defaultCanonicalizerSize never is.
		panic(err)
	}
	return &Canonicalizer{cache: cache}
}

// Canonicalize resolves raw (absolute, or relative to root) to an absolute,
// symlink-resolved path. If symlink resolution fails (the path does not
// exist on disk, which is common for generated/virtual paths some linters
// report), the cleaned absolute path is used instead.
func (c *Canonicalizer) Canonicalize(root, raw string) string {
	key := root + "\x00" + raw
	if v, ok := c.cache.Get(key); ok {
		return v.(string)
	}

	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = filepath.Clean(path)
	}
	c.cache.Add(key, resolved)
	return resolved
}

// Parser applies one linter's Config to a stream of output lines.
type Parser struct {
	cfg           Config
	canonicalizer *Canonicalizer
	log           *zap.Logger
}

// NewParser validates cfg and returns a Parser, or the ConfigError from
// Validate.
func NewParser(cfg Config, canonicalizer *Canonicalizer, log *zap.Logger) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{cfg: cfg, canonicalizer: canonicalizer, log: log}, nil
}

// Stream reads newline-delimited linter output from r and emits Diagnostics
// on the returned channel, which is closed when r reaches EOF. root is the
// resolved working directory used to make relative filename captures
// absolute; documentCanonicalPath is the canonical path of the document being
// linted — diagnostics whose canonicalised filename capture differs from
// it are discarded (spec §4.6, §8 invariant 4).
//
// Linters that emit a "path:line:\n  description"-style pair put the
// location on one line and the free-text description on the line
// immediately following it. DescriptionGroup = -1 captures exactly that
// shape: once a line matches, the next input line is consumed as the
// (trimmed) message and is not itself re-offered to the pattern.
func (p *Parser) Stream(r io.Reader, root, documentCanonicalPath string) <-chan Diagnostic {
	out := make(chan Diagnostic)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			m := p.cfg.Pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			var nextLine string
			var hasNext bool
			if p.cfg.DescriptionGroup != nil && *p.cfg.DescriptionGroup == -1 {
				hasNext = scanner.Scan()
				if hasNext {
					nextLine = scanner.Text()
				}
			}

			if d, ok := p.buildDiagnostic(line, m, nextLine, hasNext, root, documentCanonicalPath); ok {
				out <- d
			}
		}
	}()
	return out
}

func (p *Parser) buildDiagnostic(line string, m []string, nextLine string, hasNext bool, root, documentCanonicalPath string) (Diagnostic, bool) {
	lineNo, err := strconv.ParseUint(strings.TrimSpace(m[p.cfg.LineGroup]), 10, 32)
	if err != nil {
		p.log.Debug("linter output line number did not parse, skipping diagnostic",
			zap.String("linter", p.cfg.LinterName), zap.String("line", line))
		return Diagnostic{}, false
	}

	if p.cfg.FilenameGroup != 0 {
		raw := m[p.cfg.FilenameGroup]
		canonical := p.canonicalizer.Canonicalize(root, raw)
		if canonical != documentCanonicalPath {
			return Diagnostic{}, false
		}
	}

	startCol := 1
	if p.cfg.StartColGroup != 0 {
		if v, err := strconv.Atoi(strings.TrimSpace(m[p.cfg.StartColGroup])); err == nil {
			startCol = v
		}
	}
	endCol := startCol + 1
	if p.cfg.EndColGroup != 0 {
		if v, err := strconv.Atoi(strings.TrimSpace(m[p.cfg.EndColGroup])); err == nil {
			endCol = v
		}
	}

	severity := SeverityError
	if p.cfg.SeverityGroup != 0 {
		severity = NormalizeSeverity(m[p.cfg.SeverityGroup])
	}

	message, ok := p.describe(m, nextLine, hasNext)
	if !ok {
		return Diagnostic{}, false
	}

	return Diagnostic{
		Range: Range{
			Start: Position{Line: int(lineNo) - 1, Character: startCol - 1},
			End:   Position{Line: int(lineNo) - 1, Character: endCol - 1},
		},
		Severity: severity,
		Source:   p.cfg.LinterName,
		Message:  message,
	}, true
}

func (p *Parser) describe(m []string, nextLine string, hasNext bool) (string, bool) {
	d := p.cfg.DescriptionGroup
	switch {
	case d == nil:
		return "", true
	case *d == -1:
		if !hasNext {
			return "", true
		}
		return strings.TrimSpace(nextLine), true
	case *d > 0:
		return m[*d], true
	default:
		p.log.Warn("invalid description capture index, skipping diagnostic",
			zap.String("linter", p.cfg.LinterName), zap.Int("index", *d))
		return "", false
	}
}
