// Package docstore is the local supporting-document cache, mapping a
// certificate ID to at most one validated document. Validation happens
// before any encoding or persistence work; a new upload overwrites the prior
// record. The store is explicitly constructed and passed by reference to
// whichever component needs it; there is no hidden process-wide instance.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// Store validates documents and delegates persistence to a DocumentBackend.
type Store struct {
	backend interfaces.DocumentBackend
	maxSize int64
	log     *slog.Logger
}

// New creates a document store over the given backend with the standard
// allow-list and the 5 MiB size cap.
func New(backend interfaces.DocumentBackend, log *slog.Logger) *Store {
	return &Store{
		backend: backend,
		maxSize: interfaces.MaxDocumentSize,
		log:     log,
	}
}

// Store validates and saves a supporting document for id. Rejections happen
// before the payload is handed to the backend. The document may be staged
// before the certificate is minted; no ordering is enforced between cache
// writes and ledger confirmation.
func (s *Store) Store(ctx context.Context, id interfaces.TokenID, mimeType string, payload []byte) error {
	if !interfaces.DocumentTypeAllowed(mimeType) {
		return fmt.Errorf("%w: document type %q not allowed", interfaces.ErrValidation, mimeType)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty document", interfaces.ErrValidation)
	}
	if int64(len(payload)) > s.maxSize {
		return fmt.Errorf("%w: document size %d exceeds %d byte limit",
			interfaces.ErrValidation, len(payload), s.maxSize)
	}

	record := interfaces.DocumentRecord{
		TokenID:    id,
		MimeType:   mimeType,
		Size:       int64(len(payload)),
		Payload:    payload,
		UploadedAt: time.Now().UTC(),
	}

	if err := s.backend.Store(ctx, record); err != nil {
		return fmt.Errorf("storing document for certificate %s: %w", id, err)
	}

	s.log.Debug("Document stored",
		slog.String("token_id", id.String()),
		slog.String("mime_type", mimeType),
		slog.Int64("size", record.Size))
	return nil
}

// Get retrieves the document for id, or ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, id interfaces.TokenID) (interfaces.DocumentRecord, error) {
	return s.backend.Fetch(ctx, id)
}

// Has reports whether a document exists for id.
func (s *Store) Has(ctx context.Context, id interfaces.TokenID) bool {
	_, err := s.backend.Fetch(ctx, id)
	return err == nil
}

// Remove deletes the document for id, reporting whether one existed.
func (s *Store) Remove(ctx context.Context, id interfaces.TokenID) bool {
	if err := s.backend.Delete(ctx, id); err != nil {
		return false
	}
	s.log.Debug("Document removed", slog.String("token_id", id.String()))
	return true
}

// IDs returns every certificate ID with a stored document, including records
// orphaned by a burn. Burns never cascade into the cache.
func (s *Store) IDs(ctx context.Context) ([]interfaces.TokenID, error) {
	return s.backend.List(ctx)
}

// Backend exposes the underlying backend for diagnostics.
func (s *Store) Backend() interfaces.DocumentBackend {
	return s.backend
}
