// Package storage defines the file-system abstraction shared by the vault and profile workspaces.
package storage

import (
	"os"

	"github.com/starford/folio/internal/models"
)

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (os.FileInfo, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
}

var _ Provider = (*FS)(nil)
