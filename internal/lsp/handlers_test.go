package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"

	"github.com/pickls/pickls/internal/symbols"
)

func TestSymbolKindFor(t *testing.T) {
	tests := []struct {
		name     string
		input    symbols.Kind
		expected protocol.SymbolKind
	}{
		{"function", symbols.KindFunction, protocol.SymbolKindFunction},
		{"class", symbols.KindClass, protocol.SymbolKindClass},
		{"method", symbols.KindMethod, protocol.SymbolKindMethod},
		{"module", symbols.KindModule, protocol.SymbolKindModule},
		{"variable", symbols.KindVariable, protocol.SymbolKindVariable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, symbolKindFor(tt.input))
		})
	}
}

func TestLSPRangeToAssist(t *testing.T) {
	r := protocol.Range{
		Start: protocol.Position{Line: 1, Character: 2},
		End:   protocol.Position{Line: 3, Character: 4},
	}
	got := lspRangeToAssist(r)
	assert.Equal(t, 1, got.Start.Line)
	assert.Equal(t, 2, got.Start.Character)
	assert.Equal(t, 3, got.End.Line)
	assert.Equal(t, 4, got.End.Character)
}

func TestTickToPercentageMath(t *testing.T) {
	notifier := &clientNotifier{}
	// progressReporter.Report is not called: sendProgress goes through
	// n.conn.Notify and conn is nil here. This checks only the
	// tick-to-percentage arithmetic that Report uses.
	r := &progressReporter{notifier: notifier, token: "t", title: "title"}
	assert.Equal(t, 50, tickPercentage(1, 2))
	assert.Equal(t, 100, tickPercentage(2, 2))
	assert.Equal(t, 0, tickPercentage(0, 0))
	_ = r
}

func tickPercentage(tick, total int) int {
	if total == 0 {
		return 0
	}
	return (tick * 100) / total
}
