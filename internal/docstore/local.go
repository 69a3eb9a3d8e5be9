// Package docstore stores uploaded documents on the local filesystem.
// File ids are content-addressed, so re-uploading the same document yields
// the same opaque id. The pipeline only ever checks existence and reads
// bytes back; it never interprets ids.
package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the document storage collaborator seen by the submitter and
// the pipeline.
type Store interface {
	Save(content []byte, filename string) (string, error)
	Open(fileID string) ([]byte, error)
	Exists(fileID string) bool
}

// Local keeps documents as flat files under a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating document root: %w", err)
	}
	return &Local{root: root}, nil
}

// Save writes content under an id derived from its SHA-256 digest,
// keeping the original extension so extraction can sniff the format.
func (l *Local) Save(content []byte, filename string) (string, error) {
	digest := sha256.Sum256(content)
	fileID := hex.EncodeToString(digest[:])[:32]

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".bin"
	}

	target := filepath.Join(l.root, fileID+ext)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("writing document %s: %w", fileID, err)
	}
	return fileID, nil
}

// Open returns the bytes for a stored document, or ErrNotFound.
func (l *Local) Open(fileID string) ([]byte, error) {
	path, err := l.find(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", fileID, err)
	}
	return data, nil
}

// Exists reports whether a document with the given id is stored.
func (l *Local) Exists(fileID string) bool {
	_, err := l.find(fileID)
	return err == nil
}

// ErrNotFound is returned when no stored document matches an id.
var ErrNotFound = fmt.Errorf("document not found")

func (l *Local) find(fileID string) (string, error) {
	if fileID == "" || strings.ContainsAny(fileID, `/\`) {
		return "", ErrNotFound
	}
	matches, err := filepath.Glob(filepath.Join(l.root, fileID+"*"))
	if err != nil || len(matches) == 0 {
		return "", ErrNotFound
	}
	return matches[0], nil
}
