//go:build !windows

package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickls/pickls/internal/config"
	"github.com/pickls/pickls/internal/procrunner"
)

func TestRunEmptyChainReturnsTextUnchanged(t *testing.T) {
	p := New(procrunner.New(nil), nil)
	out, err := p.Run(nil, "hello", "/tmp/x.go", "/tmp")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

// Scenario from spec §8.5: two formatters in sequence, a -> b -> c.
func TestRunChainsFormattersInOrder(t *testing.T) {
	p := New(procrunner.New(nil), nil)
	formatters := []config.FormatterConfig{
		{Program: "sed", Args: []string{"s/a/b/"}, UseStdin: true},
		{Program: "sed", Args: []string{"s/b/c/"}, UseStdin: true},
	}

	out, err := p.Run(formatters, "a\n", "/tmp/x.txt", "/tmp")
	require.NoError(t, err)
	assert.Equal(t, "c\n", out)
}

func TestRunAbortsOnStderrWhenConfigured(t *testing.T) {
	p := New(procrunner.New(nil), nil)
	formatters := []config.FormatterConfig{
		{Program: "sh", Args: []string{"-c", "echo bad 1>&2"}, StderrIndicatesError: true},
	}

	_, err := p.Run(formatters, "a\n", "/tmp/x.txt", "/tmp")
	require.Error(t, err)
	var fmtErr *Error
	assert.ErrorAs(t, err, &fmtErr)
}

func TestRunIgnoresStderrWhenNotConfigured(t *testing.T) {
	p := New(procrunner.New(nil), nil)
	formatters := []config.FormatterConfig{
		{Program: "sh", Args: []string{"-c", "echo -n out; echo bad 1>&2"}},
	}

	out, err := p.Run(formatters, "", "/tmp/x.txt", "/tmp")
	require.NoError(t, err)
	assert.Equal(t, "out", out)
}

func TestRunFailureDiscardsPartialOutput(t *testing.T) {
	p := New(procrunner.New(nil), nil)
	formatters := []config.FormatterConfig{
		{Program: "sed", Args: []string{"s/a/b/"}, UseStdin: true},
		{Program: "sh", Args: []string{"-c", "echo partial; echo broke 1>&2"}, StderrIndicatesError: true},
	}

	out, err := p.Run(formatters, "a\n", "/tmp/x.txt", "/tmp")
	require.Error(t, err)
	assert.Empty(t, out)
}
