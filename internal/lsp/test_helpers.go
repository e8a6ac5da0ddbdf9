package lsp

// This file contains test helpers for LSP server testing.
// Note: Due to unexported methods in the jsonrpc2.Request interface,
// unit testing the wire-level dispatcher directly is impractical. Instead,
// comprehensive tests exist against the collaborators the dispatcher wires
// together: internal/document, internal/lint, internal/diagnostics,
// internal/job, internal/format, internal/symbols and internal/assist.
// This package's own tests cover its pure helper functions
// (convertSeverity, symbolKindFor, lspRangeToAssist, languageConfig and the
// capability builder) and the construction of a Server by NewServer.
//
// Integration testing should be performed using a real LSP client.
