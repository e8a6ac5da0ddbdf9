package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFoldersFileSchemeOnly(t *testing.T) {
	w := New()
	w.SetFolders([]string{"file:///home/user/project", "untitled:///scratch"})

	folders := w.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, filepath.Clean("/home/user/project"), folders[0])
}

func TestResolveRootNoMarkers(t *testing.T) {
	w := New()
	got := w.ResolveRoot("/a/b/c/file.go", nil)
	assert.Equal(t, "/a/b/c", got)
}

func TestResolveRootFindsMarker(t *testing.T) {
	tmp := t.TempDir()
	projectDir := filepath.Join(tmp, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "go.mod"), []byte("module x"), 0o644))

	sub := filepath.Join(projectDir, "internal", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	file := filepath.Join(sub, "file.go")

	w := New()
	got := w.ResolveRoot(file, []string{"go.mod"})
	assert.Equal(t, projectDir, got)
}

func TestResolveRootStopsAtWorkspaceFolder(t *testing.T) {
	tmp := t.TempDir()
	outer := filepath.Join(tmp, "outer")
	inner := filepath.Join(outer, "inner")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	// Marker exists above the workspace folder; it must not be found.
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("module x"), 0o644))

	w := New()
	w.SetFolders([]string{"file://" + inner})

	file := filepath.Join(inner, "file.go")
	got := w.ResolveRoot(file, []string{"go.mod"})
	assert.Equal(t, inner, got)
}

func TestResolveRootFallsBackToParent(t *testing.T) {
	tmp := t.TempDir()
	w := New()
	file := filepath.Join(tmp, "file.go")
	got := w.ResolveRoot(file, []string{"nonexistent.marker"})
	assert.Equal(t, tmp, got)
}
