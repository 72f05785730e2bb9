package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// FileBackend persists document records on the local file system, one JSON
// envelope per certificate ID under baseDir/documents. It is the durable
// swap-in for the in-memory backend.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file backend rooted at baseDir, creating the
// documents directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	docDir := filepath.Join(baseDir, "documents")
	if err := os.MkdirAll(docDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Store writes the record atomically: a temp file in the same directory is
// renamed over the destination so a concurrent Fetch never observes a
// partial write.
func (b *FileBackend) Store(ctx context.Context, record interfaces.DocumentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode document record: %w", err)
	}

	filePath := b.getFilePath(record.TokenID)

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".doc-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize document: %w", err)
	}

	b.log.Debug("Stored document in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))
	return nil
}

// Fetch retrieves the record for id. Returns ErrRecordNotFound if the file
// doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.TokenID) (interfaces.DocumentRecord, error) {
	filePath := b.getFilePath(id)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return interfaces.DocumentRecord{}, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to read document: %w", err)
	}

	var record interfaces.DocumentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to decode document record: %w", err)
	}
	return record, nil
}

// Delete removes the record file for id.
func (b *FileBackend) Delete(ctx context.Context, id interfaces.TokenID) error {
	err := os.Remove(b.getFilePath(id))
	if os.IsNotExist(err) {
		return interfaces.ErrRecordNotFound
	}
	return err
}

// List returns the certificate IDs with a stored document.
func (b *FileBackend) List(ctx context.Context) ([]interfaces.TokenID, error) {
	entries, err := os.ReadDir(filepath.Join(b.baseDir, "documents"))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var ids []interfaces.TokenID
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		if name == entry.Name() {
			continue
		}
		id, err := interfaces.NewTokenIDFromString(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Available checks that the base directory still exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) getFilePath(id interfaces.TokenID) string {
	return filepath.Join(b.baseDir, "documents", id.String()+".json")
}
