package library

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	filePrefix = "file:"
	notePrefix = "note:"
)

// FileDocID returns a stable document ID for an absolute path. The same path always
// yields the same ID, so a changed file replaces its previous version.
func FileDocID(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return filePrefix + hex.EncodeToString(hash[:])
}

// NewNoteID returns a fresh ID for a note.
func NewNoteID() string {
	return notePrefix + uuid.NewString()
}
