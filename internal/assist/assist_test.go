package assist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/llm"
	"github.com/pickls/pickls/internal/prompt"
)

type stubClient struct {
	out string
	err error
}

func (s stubClient) Generate(context.Context, string) (string, error) { return s.out, s.err }
func (s stubClient) Provider() llm.ProviderConfig                     { return llm.ProviderConfig{} }

func newTestAssistant() *Assistant {
	return New(zap.NewNop())
}

type fakeReporter struct {
	reports []int
	ended   bool
}

func (r *fakeReporter) Report(tick, total int) { r.reports = append(r.reports, tick) }
func (r *fakeReporter) End()                   { r.ended = true }

func TestRunCollectsSuccessfulCompletionsAndSkipsFailures(t *testing.T) {
	a := newTestAssistant()
	a.newClient = func(pc config.ProviderConfig) (llm.Client, error) {
		if pc.Name == "broken" {
			return nil, errors.New("no api key")
		}
		if pc.Name == "erroring" {
			return stubClient{err: errors.New("503")}, nil
		}
		return stubClient{out: "generated for " + pc.Name}, nil
	}

	providers := []config.ProviderConfig{
		{Name: "claude", Model: "m1"},
		{Name: "broken", Model: "m2"},
		{Name: "erroring", Model: "m3"},
	}

	reporter := &fakeReporter{}
	completions := a.Run(context.Background(), providers, "{{.Text}}", prompt.Context{Text: "x"}, reporter)

	require.Len(t, completions, 1)
	assert.Equal(t, "generated for claude", completions[0].Code)
	assert.Equal(t, "claude:m1", completions[0].ProviderModel)
	assert.True(t, reporter.ended)
	assert.Len(t, reporter.reports, 3)
}

func TestRunReturnsNoCompletionsOnTemplateError(t *testing.T) {
	a := newTestAssistant()
	reporter := &fakeReporter{}
	completions := a.Run(context.Background(), []config.ProviderConfig{{Name: "claude", Model: "m1"}}, "{{.Unterminated", prompt.Context{}, reporter)
	assert.Empty(t, completions)
	assert.True(t, reporter.ended)
}

func TestSliceSingleLineASCII(t *testing.T) {
	text := "hello world"
	got := Slice(text, Range{Start: Position{Line: 0, Character: 6}, End: Position{Line: 0, Character: 11}})
	assert.Equal(t, "world", got)
}

func TestSliceMultiLine(t *testing.T) {
	text := "line one\nline two\nline three"
	got := Slice(text, Range{Start: Position{Line: 0, Character: 5}, End: Position{Line: 2, Character: 4}})
	assert.Equal(t, "one\nline two\nline", got)
}

func TestSliceUTF16AwareWithMultiByteRunes(t *testing.T) {
	// "héllo" has 5 runes, all 1 UTF-16 unit each (é is a single BMP code
	// point), so character offsets still line up with rune positions here;
	// the astral case is what the UTF-16 split specifically protects.
	text := "héllo 😀 world"
	// "😀" is a surrogate pair (2 UTF-16 units); slicing up to just before
	// it must not split the pair.
	got := Slice(text, Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 0, Character: 6}})
	assert.Equal(t, "héllo ", got)
}

func TestEnumerateWorkspaceFilesSkipsWhenNotAGitRepo(t *testing.T) {
	dir := t.TempDir()
	files := EnumerateWorkspaceFiles([]string{dir}, nil, 1024)
	assert.Empty(t, files)
}

func TestAllowedGlobFiltering(t *testing.T) {
	assert.True(t, allowed("src/main.go", []string{"**/*.go"}))
	assert.False(t, allowed("src/main.py", []string{"**/*.go"}))
	assert.True(t, allowed("anything", nil))
}
