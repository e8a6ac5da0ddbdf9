//go:build !windows

package job

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/diagnostics"
	"github.com/pickls/pickls/internal/document"
	"github.com/pickls/pickls/internal/lint"
	"github.com/pickls/pickls/internal/procrunner"
	"github.com/pickls/pickls/internal/workspace"
)

type recordingNotifier struct {
	published chan publishedEvent
}

type publishedEvent struct {
	uri     string
	version int32
	diags   []lint.Diagnostic
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{published: make(chan publishedEvent, 16)}
}

func (r *recordingNotifier) PublishDiagnostics(uri string, diags []lint.Diagnostic, version int32) {
	r.published <- publishedEvent{uri: uri, version: version, diags: diags}
}
func (r *recordingNotifier) ProgressBegin(string, string)    {}
func (r *recordingNotifier) ProgressReport(string, int)      {}
func (r *recordingNotifier) ProgressEnd(string)              {}

func newTestOrchestrator(notifier diagnostics.Notifier) *Orchestrator {
	return New(procrunner.New(nil), workspace.New(), diagnostics.NewEngine(notifier, nil), lint.NewCanonicalizer(), nil)
}

func TestScheduleSpawnsLinterAndPublishesDiagnostic(t *testing.T) {
	notifier := newRecordingNotifier()
	o := newTestOrchestrator(notifier)

	lang := config.LanguageConfig{
		Linters: []config.LinterConfig{{
			Program:          "sh",
			Args:             []string{"-c", "echo '3: boom'"},
			PatternRaw:       `^(\d+): (.*)$`,
			LineGroup:        1,
			DescriptionGroup: intPtr(2),
		}},
	}
	lang.Linters[0].Pattern = regexp.MustCompile(lang.Linters[0].PatternRaw)

	doc := document.Record{URI: "file:///tmp/x.py", LanguageID: "python", Text: "ignored", Version: 1}
	o.Schedule(doc.URI, doc, lang)

	select {
	case ev := <-notifier.published:
		require.Len(t, ev.diags, 1)
		assert.Equal(t, "boom", ev.diags[0].Message)
		assert.EqualValues(t, 1, ev.version)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for diagnostic publication")
	}
}

func TestScheduleKillsPriorSet(t *testing.T) {
	notifier := newRecordingNotifier()
	o := newTestOrchestrator(notifier)

	lang := config.LanguageConfig{
		Linters: []config.LinterConfig{{
			Program:          "sleep",
			Args:             []string{"30"},
			PatternRaw:       `^nevermatches$`,
			LineGroup:        1,
		}},
	}
	lang.Linters[0].Pattern = regexp.MustCompile(lang.Linters[0].PatternRaw)

	doc := document.Record{URI: "file:///tmp/slow.py", LanguageID: "python", Text: "x", Version: 1}
	o.Schedule(doc.URI, doc, lang)

	o.mu.Lock()
	firstSet := o.sets[doc.URI]
	o.mu.Unlock()
	require.Len(t, firstSet, 1)

	doc.Version = 2
	o.Schedule(doc.URI, doc, lang)

	o.mu.Lock()
	secondSet := o.sets[doc.URI]
	o.mu.Unlock()
	require.Len(t, secondSet, 1)
	assert.NotEqual(t, firstSet[0].pid, secondSet[0].pid)
}

func TestScheduleWithNoLintersDoesNothing(t *testing.T) {
	notifier := newRecordingNotifier()
	o := newTestOrchestrator(notifier)

	doc := document.Record{URI: "file:///tmp/none.py", LanguageID: "text", Text: "x", Version: 1}
	o.Schedule(doc.URI, doc, config.LanguageConfig{})

	select {
	case <-notifier.published:
		t.Fatal("expected no publication for a language with no linters")
	case <-time.After(200 * time.Millisecond):
	}
}

func intPtr(i int) *int { return &i }
