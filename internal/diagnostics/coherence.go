// Package diagnostics implements the per-document, multi-linter coherence
// engine (spec §4.7): it aggregates diagnostics from N linters that may be
// reporting for different document versions, enforces version monotonicity,
// and drives the $/progress lifecycle.
package diagnostics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pickls/pickls/internal/lint"
	"go.uber.org/zap"
)

// Notifier is the outward-facing side of the coherence engine: publishing
// an aggregated diagnostic set and driving $/progress for a URI/version.
type Notifier interface {
	PublishDiagnostics(uri string, diags []lint.Diagnostic, version int32)
	ProgressBegin(token, title string)
	ProgressReport(token string, percentage int)
	ProgressEnd(token string)
}

type record struct {
	maxLinterCount int
	perLinter      map[string][]lint.Diagnostic
	versions       map[int32]struct{}
	began          map[int32]struct{}
}

func newRecord(maxLinterCount int, version int32) *record {
	return &record{
		maxLinterCount: maxLinterCount,
		perLinter:      make(map[string][]lint.Diagnostic),
		versions:       map[int32]struct{}{version: {}},
		began:          make(map[int32]struct{}),
	}
}

func (r *record) maxVersion() int32 {
	max := int32(-1 << 31)
	for v := range r.versions {
		if v > max {
			max = v
		}
	}
	return max
}

// Engine holds one record per URI.
type Engine struct {
	mu       sync.Mutex
	records  map[string]*record
	notifier Notifier
	log      *zap.Logger
}

// NewEngine creates a coherence engine that reports through notifier.
func NewEngine(notifier Notifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		records:  make(map[string]*record),
		notifier: notifier,
		log:      log,
	}
}

// ProgressToken returns the "{uri}:{version}" token used to correlate
// multiple linters' progress to one logical job (spec §4.7, §9).
func ProgressToken(uri string, version int32) string {
	return fmt.Sprintf("%s:%d", uri, version)
}

// Update applies one linter's result for (uri, version) and publishes the
// aggregate. See spec §4.7 for the full state-transition description.
func (e *Engine) Update(uri, linterName string, maxLinterCount int, version int32, diags []lint.Diagnostic) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[uri]
	if !ok {
		rec = newRecord(maxLinterCount, version)
		e.records[uri] = rec
	}

	curMax := rec.maxVersion()
	switch {
	case version < curMax:
		e.log.Debug("stale diagnostic update discarded",
			zap.String("uri", uri), zap.String("linter", linterName),
			zap.Int32("version", version), zap.Int32("current_max", curMax))
		return
	case version > curMax:
		rec.perLinter = make(map[string][]lint.Diagnostic)
		rec.maxLinterCount = maxLinterCount
		rec.versions[version] = struct{}{}
		curMax = version
	default:
		rec.versions[version] = struct{}{}
	}

	rec.perLinter[linterName] = diags
	e.publishLocked(uri, rec, curMax)
}

func (e *Engine) publishLocked(uri string, rec *record, curMax int32) {
	published := make([]lint.Diagnostic, 0)
	for _, ds := range rec.perLinter {
		published = append(published, ds...)
	}
	sort.Slice(published, func(i, j int) bool {
		if published[i].Range.Start.Line != published[j].Range.Start.Line {
			return published[i].Range.Start.Line < published[j].Range.Start.Line
		}
		if published[i].Source != published[j].Source {
			return published[i].Source < published[j].Source
		}
		return published[i].Message < published[j].Message
	})

	e.notifier.PublishDiagnostics(uri, published, curMax)

	percentage := 100
	if rec.maxLinterCount > 0 {
		percentage = len(rec.perLinter) * 100 / rec.maxLinterCount
	}

	versions := make([]int32, 0, len(rec.versions))
	for v := range rec.versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	for _, v := range versions {
		token := ProgressToken(uri, v)
		if v == curMax {
			if _, began := rec.began[v]; !began {
				e.notifier.ProgressBegin(token, "Linting")
				rec.began[v] = struct{}{}
			}
			e.notifier.ProgressReport(token, percentage)
			continue
		}
		e.notifier.ProgressEnd(token)
		delete(rec.versions, v)
		delete(rec.began, v)
	}
}
