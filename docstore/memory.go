package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// MemoryBackend keeps document records in process memory. This is the
// backend the core contract is written against: a store resolves and the
// record is immediately retrievable for the lifetime of the process.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[interfaces.TokenID]interfaces.DocumentRecord
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[interfaces.TokenID]interfaces.DocumentRecord),
	}
}

// Store saves the record, replacing any prior one. The payload is copied so
// the cache exclusively owns it.
func (b *MemoryBackend) Store(ctx context.Context, record interfaces.DocumentRecord) error {
	payload := make([]byte, len(record.Payload))
	copy(payload, record.Payload)
	record.Payload = payload

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[record.TokenID] = record
	return nil
}

// Fetch retrieves the record for id.
func (b *MemoryBackend) Fetch(ctx context.Context, id interfaces.TokenID) (interfaces.DocumentRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.records[id]
	if !ok {
		return interfaces.DocumentRecord{}, interfaces.ErrRecordNotFound
	}

	payload := make([]byte, len(record.Payload))
	copy(payload, record.Payload)
	record.Payload = payload
	return record, nil
}

// Delete removes the record for id.
func (b *MemoryBackend) Delete(ctx context.Context, id interfaces.TokenID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[id]; !ok {
		return interfaces.ErrRecordNotFound
	}
	delete(b.records, id)
	return nil
}

// List returns the stored certificate IDs in ascending order.
func (b *MemoryBackend) List(ctx context.Context) ([]interfaces.TokenID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]interfaces.TokenID, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Available always reports true for process memory.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this backend.
func (b *MemoryBackend) LocationURI() string {
	return "memory://"
}
