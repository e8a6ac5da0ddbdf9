package lsp

import (
	"context"
	"encoding/json"
	"math"

	"github.com/google/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	lspuri "go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/assist"
	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/prompt"
	"github.com/pickls/pickls/internal/symbols"
)

const inlineAssistKind = protocol.CodeActionKind("pickls.inline-assist")

// handleTextDocumentFormatting runs the configured formatter chain (C9) and
// replies with a single full-document edit, or a no-op edit list if a
// formatter in the chain failed (spec §4.9: the document is left unchanged,
// the failure surfaced as a warning instead).
func (s *Server) handleTextDocumentFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse formatting params")
	}

	uri := string(params.TextDocument.URI)
	doc, err := s.store.Get(uri)
	if err != nil {
		return reply(ctx, nil, nil)
	}

	lang, ok := s.languageConfig(doc.LanguageID)
	if !ok || len(lang.Formatters) == 0 {
		return reply(ctx, []protocol.TextEdit{}, nil)
	}

	docPath := lspuri.URI(uri).Filename()
	root := s.ws.ResolveRoot(docPath, lang.RootMarkers)

	formatted, err := s.formatter.Run(lang.Formatters, doc.Text, docPath, root)
	if err != nil {
		s.warn(ctx, "formatting failed: %v", err)
		return reply(ctx, []protocol.TextEdit{}, nil)
	}

	edit := protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   protocol.Position{Line: math.MaxUint32, Character: math.MaxUint32},
		},
		NewText: formatted,
	}
	return reply(ctx, []protocol.TextEdit{edit}, nil)
}

// handleWorkspaceExecuteCommand is a pass-through: inline-assist's real work
// happens inside textDocument/codeAction, and no other command is advertised.
func (s *Server) handleWorkspaceExecuteCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	return reply(ctx, nil, nil)
}

// handleTextDocumentCodeAction offers the inline-assist action (C11) over
// the requested range, when AI providers are configured.
func (s *Server) handleTextDocumentCodeAction(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CodeActionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse codeAction params")
	}

	s.cfgMu.RLock()
	aiCfg := s.cfg.AI
	s.cfgMu.RUnlock()
	if aiCfg == nil || len(aiCfg.Providers) == 0 {
		return reply(ctx, []protocol.CodeAction{}, nil)
	}

	uri := string(params.TextDocument.URI)
	doc, err := s.store.Get(uri)
	if err != nil {
		return reply(ctx, []protocol.CodeAction{}, nil)
	}

	actions := s.inlineAssistActions(ctx, uri, doc.Text, params.Range, *aiCfg)
	return reply(ctx, actions, nil)
}

func (s *Server) inlineAssistActions(ctx context.Context, uri, text string, rng protocol.Range, aiCfg config.AIConfig) []protocol.CodeAction {
	selection := assist.Slice(text, lspRangeToAssist(rng))

	var files map[string]string
	if aiCfg.IncludeWorkspace {
		files = assist.EnumerateWorkspaceFiles(s.ws.Folders(), aiCfg.WorkspaceAllowGlob, aiCfg.MaxFileBytes)
	}

	token := uuid.NewString()
	reporter := &progressReporter{notifier: s.notifier, token: token, title: "pickls: inline assist"}
	reporter.Begin()

	completions := s.assistant.Run(ctx, aiCfg.Providers, aiCfg.PromptTemplate, prompt.Context{
		Text:             selection,
		IncludeWorkspace: aiCfg.IncludeWorkspace,
		Files:            files,
	}, reporter)

	actions := make([]protocol.CodeAction, 0, len(completions))
	for _, c := range completions {
		actions = append(actions, protocol.CodeAction{
			Title: "pickls: inline assist (" + c.ProviderModel + ")",
			Kind:  inlineAssistKind,
			Edit: &protocol.WorkspaceEdit{
				Changes: map[protocol.DocumentURI][]protocol.TextEdit{
					protocol.DocumentURI(uri): {
						{Range: rng, NewText: c.Code},
					},
				},
			},
		})
	}
	return actions
}

func lspRangeToAssist(r protocol.Range) assist.Range {
	return assist.Range{
		Start: assist.Position{Line: int(r.Start.Line), Character: int(r.Start.Character)},
		End:   assist.Position{Line: int(r.End.Line), Character: int(r.End.Character)},
	}
}

// handleWorkspaceSymbol runs the tag extractor once across every workspace
// folder and returns the symbols matching query (C10).
func (s *Server) handleWorkspaceSymbol(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.WorkspaceSymbolParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse workspace/symbol params")
	}

	s.cfgMu.RLock()
	symCfg := s.cfg.Symbols
	s.cfgMu.RUnlock()
	if symCfg == nil {
		return reply(ctx, []protocol.SymbolInformation{}, nil)
	}

	folders := s.ws.Folders()
	syms, err := s.symbolProv.Search(ctx, *symCfg, folders, params.Query)
	if err != nil {
		s.logger.Warn("symbol search failed", zap.Strings("roots", folders), zap.Error(err))
		return reply(ctx, []protocol.SymbolInformation{}, nil)
	}

	out := make([]protocol.SymbolInformation, 0, len(syms))
	for _, sym := range syms {
		out = append(out, protocol.SymbolInformation{
			Name: sym.Name,
			Kind: symbolKindFor(sym.Kind),
			Location: protocol.Location{
				URI: protocol.DocumentURI(lspuri.File(sym.Path)),
				Range: protocol.Range{
					Start: protocol.Position{Line: uint32(sym.Line - 1), Character: 0},
					End:   protocol.Position{Line: uint32(sym.Line - 1), Character: 0},
				},
			},
		})
	}
	return reply(ctx, out, nil)
}

func symbolKindFor(k symbols.Kind) protocol.SymbolKind {
	switch k {
	case symbols.KindFunction:
		return protocol.SymbolKindFunction
	case symbols.KindClass:
		return protocol.SymbolKindClass
	case symbols.KindMethod:
		return protocol.SymbolKindMethod
	case symbols.KindModule:
		return protocol.SymbolKindModule
	default:
		return protocol.SymbolKindVariable
	}
}

// progressReporter adapts the coherence engine's $/progress notifier to the
// inline-assist fan-out's simpler Report/End lifecycle, keyed by a
// per-request token rather than the "{uri}:{version}" token diagnostics use.
type progressReporter struct {
	notifier *clientNotifier
	token    string
	title    string
}

func (r *progressReporter) Begin() {
	r.notifier.ProgressBegin(r.token, r.title)
}

func (r *progressReporter) Report(tick, total int) {
	pct := 0
	if total > 0 {
		pct = (tick * 100) / total
	}
	r.notifier.ProgressReport(r.token, pct)
}

func (r *progressReporter) End() {
	r.notifier.ProgressEnd(r.token)
}
