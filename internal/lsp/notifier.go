package lsp

import (
	"context"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/pickls/pickls/internal/lint"
)

// progressValue is the LSP $/progress notification payload (work-done
// progress begin/report/end), sent raw over the connection rather than
// through protocol.Client because this library's Client interface predates
// the work-done-progress additions to the spec.
type progressValue struct {
	Kind       string `json:"kind"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Percentage uint32 `json:"percentage,omitempty"`
}

type progressParams struct {
	Token string        `json:"token"`
	Value progressValue `json:"value"`
}

// clientNotifier adapts the connection's protocol.Client (for diagnostics)
// and raw JSON-RPC notify (for $/progress) to the diagnostics.Notifier
// interface the coherence engine (C7) drives.
type clientNotifier struct {
	conn   jsonrpc2.Conn
	client protocol.Client
	log    *zap.Logger
}

// PublishDiagnostics implements diagnostics.Notifier.
func (n *clientNotifier) PublishDiagnostics(uri string, diags []lint.Diagnostic, version int32) {
	lspDiags := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		lspDiags = append(lspDiags, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: uint32(d.Range.Start.Line), Character: uint32(d.Range.Start.Character)},
				End:   protocol.Position{Line: uint32(d.Range.End.Line), Character: uint32(d.Range.End.Character)},
			},
			Severity: convertSeverity(d.Severity),
			Source:   d.Source,
			Message:  d.Message,
		})
	}

	params := protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Version:     uint32(version),
		Diagnostics: lspDiags,
	}

	if err := n.client.PublishDiagnostics(context.Background(), &params); err != nil {
		n.log.Warn("failed to publish diagnostics", zap.String("uri", uri), zap.Error(err))
	}
}

// ProgressBegin implements diagnostics.Notifier.
func (n *clientNotifier) ProgressBegin(token, title string) {
	n.sendProgress(token, progressValue{Kind: "begin", Title: title})
}

// ProgressReport implements diagnostics.Notifier.
func (n *clientNotifier) ProgressReport(token string, percentage int) {
	n.sendProgress(token, progressValue{Kind: "report", Percentage: uint32(percentage)})
}

// ProgressEnd implements diagnostics.Notifier.
func (n *clientNotifier) ProgressEnd(token string) {
	n.sendProgress(token, progressValue{Kind: "end"})
}

func (n *clientNotifier) sendProgress(token string, value progressValue) {
	if err := n.conn.Notify(context.Background(), "$/progress", progressParams{Token: token, Value: value}); err != nil {
		n.log.Debug("failed to send $/progress", zap.String("token", token), zap.Error(err))
	}
}

// convertSeverity maps a parsed diagnostic's canonicalised severity to its
// LSP counterpart.
func convertSeverity(s lint.Severity) protocol.DiagnosticSeverity {
	switch s {
	case lint.SeverityError:
		return protocol.DiagnosticSeverityError
	case lint.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case lint.SeverityHint:
		return protocol.DiagnosticSeverityHint
	case lint.SeverityInformation:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}
