package docpatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Store reads and writes the configuration document at a fixed path
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a Store for the document at path on the OS filesystem
func NewStore(path string) *Store {
	return NewStoreFs(afero.NewOsFs(), path)
}

// NewStoreFs returns a Store backed by the given filesystem
func NewStoreFs(fsys afero.Fs, path string) *Store {
	return &Store{fs: fsys, path: path}
}

// Path returns the document path
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the whole document
func (s *Store) Load() (map[string]any, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config document: %w", err)
	}
	return Decode(data)
}

// Save encodes doc and replaces the document file. The new content is
// written to a temporary file in the same directory and renamed over the
// original, so the path holds either the old or the new document.
func (s *Store) Save(doc map[string]any) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	perm := fs.FileMode(0o644)
	if info, err := s.fs.Stat(s.path); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(s.path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), uuid.NewString()))

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace config document: %w", err)
	}
	committed = true
	return nil
}

// Patch loads the document, applies ops and saves the result. Nothing is
// written when any operation fails.
func (s *Store) Patch(ops []Op) (map[string]any, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	patched, err := Apply(doc, ops)
	if err != nil {
		return nil, err
	}
	if err := s.Save(patched); err != nil {
		return nil, err
	}
	return patched, nil
}

// Decode parses a JSON document whose root must be an object. Numbers are
// kept as json.Number so they re-encode exactly as read.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse config document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to parse config document: trailing data after root value")
	}
	doc, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w (found %s)", ErrNotObject, typeName(root))
	}
	return doc, nil
}

// Encode renders doc with two-space indentation and a trailing newline.
// Non-ASCII text and HTML characters are written unescaped.
func Encode(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode config document: %w", err)
	}
	return buf.Bytes(), nil
}
