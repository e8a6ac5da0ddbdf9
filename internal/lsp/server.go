// Package lsp implements the pickls Language Server: a framed JSON-RPC 2.0
// server over stdio that wraps arbitrary CLI linters, formatters, a
// ctags-style tag extractor, and LLM completion providers as LSP
// diagnostics, formatting, and code-action surfaces.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/assist"
	"github.com/pickls/pickls/internal/cli/ui"
	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/diagnostics"
	"github.com/pickls/pickls/internal/document"
	"github.com/pickls/pickls/internal/format"
	"github.com/pickls/pickls/internal/job"
	"github.com/pickls/pickls/internal/lint"
	"github.com/pickls/pickls/internal/procrunner"
	"github.com/pickls/pickls/internal/symbols"
	"github.com/pickls/pickls/internal/workspace"
)

// Server wires together the document store, workspace model, job
// orchestrator, diagnostic coherence engine, formatter pipeline, symbol
// provider and inline-assist fan-out behind one JSON-RPC dispatcher (C12).
type Server struct {
	logger *zap.Logger

	cfgMu sync.RWMutex
	cfg   *config.Config

	ws     *workspace.Workspace
	store  *document.Store
	runner *procrunner.Runner
	canon  *lint.Canonicalizer

	engine       *diagnostics.Engine
	notifier     *clientNotifier
	orchestrator *job.Orchestrator
	formatter    *format.Pipeline
	symbolProv   *symbols.Provider
	assistant    *assist.Assistant

	conn   jsonrpc2.Conn
	client protocol.Client

	capabilities protocol.ServerCapabilities
	cancel       context.CancelFunc
}

// NewServer constructs a server with its full collaborator graph, loading
// configuration from the XDG path (spec §6). A config load failure does not
// prevent startup — the server runs with no languages configured and the
// problem is logged, per the ambient-stack rule that logging construction
// itself must never block startup.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	cfg, err := config.Load(log)
	if err != nil {
		log.Warn("failed to load pickls configuration, starting with no languages configured", zap.Error(err))
		cfg = &config.Config{Languages: map[string]config.LanguageConfig{}}
	}

	ws := workspace.New()
	store := document.New(log)
	runner := procrunner.New(log)
	canon := lint.NewCanonicalizer()

	notifier := &clientNotifier{log: log}
	engine := diagnostics.NewEngine(notifier, log)
	orchestrator := job.New(runner, ws, engine, canon, log)
	formatter := format.New(runner, log)
	symbolProv := symbols.New(runner, log)
	assistant := assist.New(log)

	return &Server{
		logger:       log,
		cfg:          cfg,
		ws:           ws,
		store:        store,
		runner:       runner,
		canon:        canon,
		engine:       engine,
		notifier:     notifier,
		orchestrator: orchestrator,
		formatter:    formatter,
		symbolProv:   symbolProv,
		assistant:    assistant,
		capabilities: buildCapabilities(cfg),
	}
}

// Run starts the framed transport (C1) and blocks until ctx is cancelled or
// the client sends exit.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting pickls language server")

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	stream := jsonrpc2.NewStream(stdrwc{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn
	s.notifier.conn = conn
	s.client = protocol.ClientDispatcher(conn, s.logger)
	s.notifier.client = s.client

	conn.Go(ctx, s.handler())

	<-ctx.Done()
	s.logger.Info("shutting down pickls language server")
	return conn.Close()
}

// handler returns the dispatch table described in spec §4.2.
func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case protocol.MethodInitialize:
			return s.handleInitialize(ctx, reply, req)
		case protocol.MethodInitialized:
			return s.handleInitialized(ctx, reply, req)
		case protocol.MethodShutdown:
			return s.handleShutdown(ctx, reply, req)
		case protocol.MethodExit:
			return s.handleExit(ctx, reply, req)
		case protocol.MethodTextDocumentDidOpen:
			return s.handleTextDocumentDidOpen(ctx, reply, req)
		case protocol.MethodTextDocumentDidChange:
			return s.handleTextDocumentDidChange(ctx, reply, req)
		case protocol.MethodTextDocumentDidClose:
			return s.handleTextDocumentDidClose(ctx, reply, req)
		case protocol.MethodTextDocumentFormatting:
			return s.handleTextDocumentFormatting(ctx, reply, req)
		case protocol.MethodTextDocumentCodeAction:
			return s.handleTextDocumentCodeAction(ctx, reply, req)
		case protocol.MethodWorkspaceExecuteCommand:
			return s.handleWorkspaceExecuteCommand(ctx, reply, req)
		case protocol.MethodWorkspaceSymbol:
			return s.handleWorkspaceSymbol(ctx, reply, req)
		case protocol.MethodWorkspaceDidChangeConfiguration:
			return s.handleDidChangeConfiguration(ctx, reply, req)
		default:
			s.logger.Debug("ignoring unhandled method", zap.String("method", req.Method()))
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse initialize params")
	}

	var folders []string
	if len(params.WorkspaceFolders) > 0 {
		for _, f := range params.WorkspaceFolders {
			folders = append(folders, string(f.URI))
		}
	} else if params.RootURI != "" {
		folders = append(folders, string(params.RootURI))
	}
	s.ws.SetFolders(folders)

	result := protocol.InitializeResult{
		Capabilities: s.capabilities,
		ServerInfo: &protocol.ServerInfo{
			Name:    "pickls",
			Version: "0.1.0",
		},
	}
	return reply(ctx, result, nil)
}

func (s *Server) handleInitialized(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Info("client initialized")
	return reply(ctx, nil, nil)
}

func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Info("shutdown requested")
	return reply(ctx, nil, nil)
}

func (s *Server) handleExit(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if err := reply(ctx, nil, nil); err != nil {
		s.logger.Warn("error replying to exit", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Server) handleTextDocumentDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse didOpen params")
	}

	uri := string(params.TextDocument.URI)
	languageID := string(params.TextDocument.LanguageID)
	s.store.Open(uri, languageID, params.TextDocument.Text, int32(params.TextDocument.Version))

	s.scheduleLinters(ctx, uri, languageID)
	return reply(ctx, nil, nil)
}

func (s *Server) handleTextDocumentDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse didChange params")
	}

	if len(params.ContentChanges) != 1 {
		s.logger.Warn("didChange with other than one content change, aborting (full-text sync only)",
			zap.String("uri", string(params.TextDocument.URI)), zap.Int("changes", len(params.ContentChanges)))
		return reply(ctx, nil, nil)
	}

	uri := string(params.TextDocument.URI)
	languageID, applied := s.store.Change(uri, int32(params.TextDocument.Version), params.ContentChanges[0].Text)
	if applied {
		s.scheduleLinters(ctx, uri, languageID)
	}
	return reply(ctx, nil, nil)
}

func (s *Server) handleTextDocumentDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "failed to parse didClose params")
	}

	uri := string(params.TextDocument.URI)
	s.store.Close(uri)
	s.orchestrator.Cancel(ctx, uri)
	return reply(ctx, nil, nil)
}

// handleDidChangeConfiguration re-resolves the configuration file from disk
// (spec §4.2 "re-parse settings into LanguageConfig map"). pickls has no
// negotiated configuration-push schema of its own, so the trigger for a
// reload is the notification itself rather than its (client-specific)
// payload.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	cfg, err := config.Load(s.logger)
	if err != nil {
		s.warn(ctx, "failed to reload configuration: %v", err)
		return reply(ctx, nil, nil)
	}

	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.logger.Info("configuration reloaded", zap.Int("languages", len(cfg.Languages)))
	return reply(ctx, nil, nil)
}

// scheduleLinters looks up languageID in the current configuration and, if
// found, hands the document off to the job orchestrator (C8). An unknown
// language id is logged with a fuzzy "did you mean" suggestion against the
// configured language ids, rather than silently doing nothing.
func (s *Server) scheduleLinters(ctx context.Context, uri, languageID string) {
	lang, ok := s.languageConfig(languageID)
	if !ok {
		s.suggestLanguage(languageID)
		return
	}

	doc, err := s.store.Get(uri)
	if err != nil {
		s.logger.Debug("document vanished before scheduling", zap.String("uri", uri), zap.Error(err))
		return
	}
	s.orchestrator.Schedule(uri, doc, lang)
}

func (s *Server) suggestLanguage(languageID string) {
	known := make([]string, 0)
	s.cfgMu.RLock()
	for id := range s.cfg.Languages {
		known = append(known, id)
	}
	s.cfgMu.RUnlock()

	suggestions := ui.FindSimilar(languageID, known, nil)
	if len(suggestions) > 0 {
		s.logger.Debug("no configuration for language id, similar ids exist",
			zap.String("language_id", languageID), zap.Strings("did_you_mean", suggestions))
	} else {
		s.logger.Debug("no configuration for language id", zap.String("language_id", languageID))
	}
}

func (s *Server) languageConfig(languageID string) (config.LanguageConfig, bool) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	lang, ok := s.cfg.Languages[languageID]
	return lang, ok
}

// warn logs at warning level and, per spec §7, surfaces the same message to
// the client as a window/logMessage warning.
func (s *Server) warn(ctx context.Context, msgFormat string, args ...interface{}) {
	msg := fmt.Sprintf(msgFormat, args...)
	s.logger.Warn(msg)
	if s.client == nil {
		return
	}
	if err := s.client.LogMessage(ctx, &protocol.LogMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: msg,
	}); err != nil {
		s.logger.Debug("failed to send logMessage", zap.Error(err))
	}
}

func (s *Server) replyWithError(ctx context.Context, reply jsonrpc2.Replier, code jsonrpc2.Code, message string) error {
	return reply(ctx, nil, &jsonrpc2.Error{Code: code, Message: message})
}

// buildCapabilities advertises the subset of the routing table (§4.2) that
// is a request/response pair the client needs to know about up front.
// Notifications (didOpen/didChange/didClose/didChangeConfiguration) do not
// require capability advertisement. workspace/symbol is only advertised
// when a symbol tool is configured, matching "iff symbol configuration is
// present" in §6.
func buildCapabilities(cfg *config.Config) protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{
		TextDocumentSync: protocol.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    protocol.TextDocumentSyncKindFull,
		},
		DocumentFormattingProvider: &protocol.DocumentFormattingOptions{
			WorkDoneProgressOptions: protocol.WorkDoneProgressOptions{WorkDoneProgress: false},
		},
		CodeActionProvider: &protocol.CodeActionOptions{
			CodeActionKinds: []protocol.CodeActionKind{protocol.CodeActionKind("pickls.inline-assist")},
		},
		ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
			Commands: []string{"pickls.inline-assist"},
		},
	}
	if cfg.Symbols != nil {
		caps.WorkspaceSymbolProvider = true
	}
	return caps
}

// stdrwc implements io.ReadWriteCloser over stdin/stdout for the framed
// transport (C1).
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
