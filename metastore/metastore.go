// Package metastore persists the locally-editable descriptive record for
// each certificate, one JSON file per certificate ID. Records are never
// validated against the ledger and survive a burn of the certificate they
// describe.
package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// Store is a file-backed metadata store. Saves replace the prior record
// wholesale; the temp-file-and-rename write means a concurrent Load can
// never observe a partially written record.
type Store struct {
	baseDir string
	log     *slog.Logger

	// mu serializes writers; readers go straight to the file system and rely
	// on rename atomicity.
	mu sync.Mutex
}

// New creates a metadata store rooted at baseDir, creating it if needed.
func New(baseDir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return &Store{baseDir: baseDir, log: log}, nil
}

// Save fully replaces the record for id. There is no field-level merge.
func (s *Store) Save(ctx context.Context, id interfaces.TokenID, record interfaces.MetadataRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.getFilePath(id)
	tmp, err := os.CreateTemp(s.baseDir, ".meta-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize metadata: %w", err)
	}

	s.log.Debug("Metadata saved",
		slog.String("token_id", id.String()),
		slog.String("path", filePath))
	return nil
}

// Load retrieves the record for id, or ErrRecordNotFound.
func (s *Store) Load(ctx context.Context, id interfaces.TokenID) (interfaces.MetadataRecord, error) {
	data, err := os.ReadFile(s.getFilePath(id))
	if os.IsNotExist(err) {
		return interfaces.MetadataRecord{}, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return interfaces.MetadataRecord{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var record interfaces.MetadataRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return interfaces.MetadataRecord{}, fmt.Errorf("failed to decode metadata record: %w", err)
	}
	return record, nil
}

// Remove deletes the record for id, reporting whether one existed.
func (s *Store) Remove(ctx context.Context, id interfaces.TokenID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.Remove(s.getFilePath(id)) == nil
}

// IDs returns every certificate ID with a saved record, including records
// orphaned by a burn.
func (s *Store) IDs(ctx context.Context) ([]interfaces.TokenID, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
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

func (s *Store) getFilePath(id interfaces.TokenID) string {
	return filepath.Join(s.baseDir, id.String()+".json")
}
