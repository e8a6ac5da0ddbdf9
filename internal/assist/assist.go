// Package assist implements inline-assist (spec §4.11): it renders the
// configured prompt template over the selected text, fans the result out to
// every configured LLM provider in parallel, and collects the successful
// completions for the caller to turn into code actions.
package assist

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/llm"
	"github.com/pickls/pickls/internal/prompt"
)

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

// Completion is one provider's successful result.
type Completion struct {
	ProviderModel string
	Code          string
}

// ProgressReporter drives the $/progress lifecycle for one inline-assist
// request (spec §4.11 step 3: one Report tick per completion, one End after
// all of them).
type ProgressReporter interface {
	Report(tick, total int)
	End()
}

type clientFactory func(config.ProviderConfig) (llm.Client, error)

// Assistant renders prompts and fans them out to configured providers.
type Assistant struct {
	log       *zap.Logger
	newClient clientFactory
}

// New creates an Assistant using real LLM clients resolved from the
// environment (see internal/llm.FromEnv).
func New(log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{log: log, newClient: defaultClientFactory}
}

func defaultClientFactory(pc config.ProviderConfig) (llm.Client, error) {
	llmCfg, err := llm.FromEnv(pc.Name, pc.Model, 30*time.Second, 2)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(llmCfg)
}

// Run renders tmplStr over promptCtx and fans it out to every provider in
// providers concurrently. Failed providers are logged and omitted from the
// result; a template render failure aborts the whole request (there is
// nothing to send).
func (a *Assistant) Run(ctx context.Context, providers []config.ProviderConfig, tmplStr string, promptCtx prompt.Context, reporter ProgressReporter) []Completion {
	rendered, err := prompt.Render(tmplStr, promptCtx)
	if err != nil {
		a.log.Warn("inline-assist prompt template failed to render", zap.Error(err))
		if reporter != nil {
			reporter.End()
		}
		return nil
	}

	results := make(chan runResult, len(providers))
	var wg sync.WaitGroup
	for _, pc := range providers {
		pc := pc
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.runOne(ctx, pc, rendered)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var completions []Completion
	tick := 0
	for r := range results {
		tick++
		if reporter != nil {
			reporter.Report(tick, len(providers))
		}
		if r.ok {
			completions = append(completions, r.completion)
		}
	}
	if reporter != nil {
		reporter.End()
	}
	return completions
}

// runResult is one provider's outcome: either a usable completion, or
// nothing (ok=false) if the provider was misconfigured or failed.
type runResult struct {
	completion Completion
	ok         bool
}

func (a *Assistant) runOne(ctx context.Context, pc config.ProviderConfig, rendered string) runResult {
	client, err := a.newClient(pc)
	if err != nil {
		a.log.Warn("inline-assist provider misconfigured, omitting", zap.String("provider", pc.Name), zap.Error(err))
		return runResult{}
	}

	code, err := client.Generate(ctx, rendered)
	if err != nil {
		a.log.Warn("inline-assist provider request failed, omitting", zap.String("provider", pc.Name), zap.String("model", pc.Model), zap.Error(err))
		return runResult{}
	}

	return runResult{completion: Completion{ProviderModel: fmt.Sprintf("%s:%s", pc.Name, pc.Model), Code: code}, ok: true}
}

// Slice extracts the UTF-16-addressed range r from text (spec §8's
// "UTF-16-aware slicing"): LSP character offsets are counted in UTF-16 code
// units, not bytes or runes, so multi-byte/astral characters before the
// selection would otherwise throw off the cut points.
func Slice(text string, r Range) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || r.Start.Line < 0 || r.Start.Line >= len(lines) {
		return ""
	}
	endLine := r.End.Line
	if endLine < 0 {
		endLine = 0
	}
	if endLine >= len(lines) {
		endLine = len(lines) - 1
	}

	if r.Start.Line == endLine {
		return sliceUTF16(lines[r.Start.Line], r.Start.Character, r.End.Character)
	}

	var b strings.Builder
	first := lines[r.Start.Line]
	b.WriteString(sliceUTF16(first, r.Start.Character, utf16Len(first)))
	for i := r.Start.Line + 1; i < endLine; i++ {
		b.WriteString("\n")
		b.WriteString(lines[i])
	}
	b.WriteString("\n")
	b.WriteString(sliceUTF16(lines[endLine], 0, r.End.Character))
	return b.String()
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func sliceUTF16(s string, start, end int) string {
	units := utf16.Encode([]rune(s))
	if start < 0 {
		start = 0
	}
	if end > len(units) {
		end = len(units)
	}
	if start > len(units) {
		start = len(units)
	}
	if start > end {
		start = end
	}
	return string(utf16.Decode(units[start:end]))
}

// EnumerateWorkspaceFiles lists git-tracked files under each of roots,
// keeping only those that pass allowGlobs (doublestar patterns matched
// against the path relative to its root) and are small enough and valid
// UTF-8. Used to build prompt.Context.Files when include_workspace_files is
// set (spec §4.11 step 2).
func EnumerateWorkspaceFiles(roots []string, allowGlobs []string, maxBytes int64) map[string]string {
	files := make(map[string]string)
	for _, root := range roots {
		for rel, contents := range enumerateRoot(root, allowGlobs, maxBytes) {
			files[rel] = contents
		}
	}
	return files
}

func enumerateRoot(root string, allowGlobs []string, maxBytes int64) map[string]string {
	out := make(map[string]string)

	raw, err := exec.Command("git", "-C", root, "ls-files", "-z").Output()
	if err != nil {
		return out
	}

	for _, rel := range strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00") {
		if rel == "" || !allowed(rel, allowGlobs) {
			continue
		}
		full := filepath.Join(root, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() || (maxBytes > 0 && info.Size() > maxBytes) {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil || !utf8.Valid(data) {
			continue
		}
		out[rel] = string(data)
	}
	return out
}

func allowed(rel string, globs []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
