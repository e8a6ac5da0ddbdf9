package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreOpenGet(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "package a", 1)

	rec, err := s.Get("file:///a.go")
	require.NoError(t, err)
	assert.Equal(t, "go", rec.LanguageID)
	assert.Equal(t, "package a", rec.Text)
	assert.Equal(t, int32(1), rec.Version)
}

func TestStoreOpenTwiceIgnored(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "first", 1)
	s.Open("file:///a.go", "go", "second", 5)

	rec, err := s.Get("file:///a.go")
	require.NoError(t, err)
	assert.Equal(t, "first", rec.Text)
	assert.Equal(t, int32(1), rec.Version)
}

func TestStoreGetMissing(t *testing.T) {
	s := New(nil)
	_, err := s.Get("file:///missing.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreChangeMonotonic(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "v1", 1)

	lang, applied := s.Change("file:///a.go", 2, "v2")
	assert.True(t, applied)
	assert.Equal(t, "go", lang)

	rec, err := s.Get("file:///a.go")
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.Text)
	assert.Equal(t, int32(2), rec.Version)
}

func TestStoreChangeEqualVersionAccepted(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "v1", 1)

	_, applied := s.Change("file:///a.go", 1, "v1-retry")
	assert.True(t, applied, "equal version must be accepted (strict-less-than gate)")

	rec, _ := s.Get("file:///a.go")
	assert.Equal(t, "v1-retry", rec.Text)
}

func TestStoreChangeStaleDropped(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "v2", 2)

	_, applied := s.Change("file:///a.go", 1, "stale")
	assert.False(t, applied)

	rec, _ := s.Get("file:///a.go")
	assert.Equal(t, "v2", rec.Text)
	assert.Equal(t, int32(2), rec.Version)
}

func TestStoreChangeUnknownDocument(t *testing.T) {
	s := New(nil)
	_, applied := s.Change("file:///missing.go", 1, "text")
	assert.False(t, applied)
}

func TestStoreClose(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "text", 1)
	s.Close("file:///a.go")

	_, err := s.Get("file:///a.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCloseMissingTolerated(t *testing.T) {
	s := New(nil)
	assert.NotPanics(t, func() { s.Close("file:///never-opened.go") })
}

func TestStoreLanguageIDs(t *testing.T) {
	s := New(nil)
	s.Open("file:///a.go", "go", "x", 1)
	s.Open("file:///b.py", "python", "y", 1)
	s.Open("file:///c.go", "go", "z", 1)

	ids := s.LanguageIDs()
	assert.ElementsMatch(t, []string{"go", "python"}, ids)
}
