// Package document tracks the set of open editor documents.
package document

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Record is the in-memory representation of one open document.
type Record struct {
	URI        string
	LanguageID string
	Text       string
	Version    int32
}

// Store maps document URI to Record. A document exists in the store from
// didOpen until didClose; diagnostics and jobs for a URI are only valid
// while a Record for it exists.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Record
	log  *zap.Logger
}

// New creates an empty document store.
func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		docs: make(map[string]*Record),
		log:  log,
	}
}

// ErrNotFound is returned by Get when the URI has no open document.
var ErrNotFound = fmt.Errorf("document not found")

// Open inserts a new document record. A didOpen for a URI that is already
// open is logged and ignored — the client violated the protocol, but the
// existing record (and anything already keyed off it) should not be
// disturbed.
func (s *Store) Open(uri, languageID, text string, version int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[uri]; exists {
		s.log.Warn("didOpen for already-open document, ignoring", zap.String("uri", uri))
		return
	}

	s.docs[uri] = &Record{
		URI:        uri,
		LanguageID: languageID,
		Text:       text,
		Version:    version,
	}
}

// Change replaces the text and version of an open document. The new version
// must be >= the stored version or the update is dropped. Returns the
// language id of the document (inherited, per spec §9's open question) and
// whether the change was applied.
func (s *Store) Change(uri string, version int32, text string) (languageID string, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[uri]
	if !ok {
		s.log.Warn("didChange for unknown document, ignoring", zap.String("uri", uri))
		return "", false
	}

	if version < rec.Version {
		s.log.Warn("didChange with stale version, dropping",
			zap.String("uri", uri), zap.Int32("stored_version", rec.Version), zap.Int32("got_version", version))
		return rec.LanguageID, false
	}

	rec.Text = text
	rec.Version = version
	return rec.LanguageID, true
}

// Close removes a document. Closing a URI that is not open is tolerated.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Get returns a copy of the record for uri, or ErrNotFound.
func (s *Store) Get(uri string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[uri]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// LanguageIDs returns the distinct language ids currently open, in no
// particular order.
func (s *Store) LanguageIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0, len(s.docs))
	for _, rec := range s.docs {
		if _, ok := seen[rec.LanguageID]; ok {
			continue
		}
		seen[rec.LanguageID] = struct{}{}
		out = append(out, rec.LanguageID)
	}
	return out
}
