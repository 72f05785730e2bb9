package docstore

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestStore_Validation(t *testing.T) {
	store := New(NewMemoryBackend(), testLogger())
	ctx := context.Background()

	// 6 MiB PNG: over the cap.
	err := store.Store(ctx, 1, "image/png", make([]byte, 6<<20))
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	// Disallowed type.
	err = store.Store(ctx, 1, "text/plain", []byte("hello"))
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	// Empty payload.
	err = store.Store(ctx, 1, "image/png", nil)
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	// Nothing must have reached the backend.
	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_AcceptsAndReadsBack(t *testing.T) {
	store := New(NewMemoryBackend(), testLogger())
	ctx := context.Background()

	// 4 MiB PNG is within limits and immediately retrievable.
	payload := bytes.Repeat([]byte{0x89}, 4<<20)
	require.NoError(t, store.Store(ctx, 7, "image/png", payload))

	record, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, interfaces.TokenID(7), record.TokenID)
	assert.Equal(t, "image/png", record.MimeType)
	assert.Equal(t, int64(len(payload)), record.Size)
	assert.Equal(t, payload, record.Payload)
	assert.False(t, record.UploadedAt.IsZero())
}

func TestStore_LastWriteWins(t *testing.T) {
	store := New(NewMemoryBackend(), testLogger())
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, 7, "image/png", []byte("first")))
	require.NoError(t, store.Store(ctx, 7, "application/pdf", []byte("second")))

	record, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", record.MimeType)
	assert.Equal(t, []byte("second"), record.Payload)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.TokenID{7}, ids)
}

func TestStore_Remove(t *testing.T) {
	store := New(NewMemoryBackend(), testLogger())
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, 7, "image/jpeg", []byte("photo")))
	assert.True(t, store.Has(ctx, 7))

	assert.True(t, store.Remove(ctx, 7))
	assert.False(t, store.Has(ctx, 7))
	assert.False(t, store.Remove(ctx, 7), "second remove reports absence")

	_, err := store.Get(ctx, 7)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestMemoryBackend_CopiesPayload(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	payload := []byte("original")
	require.NoError(t, backend.Store(ctx, interfaces.DocumentRecord{
		TokenID: 1, MimeType: "image/png", Size: int64(len(payload)), Payload: payload,
	}))

	// Caller mutation after store must not leak into the cache.
	payload[0] = 'X'

	record, err := backend.Fetch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), record.Payload)

	// Nor must mutation of a fetched copy.
	record.Payload[0] = 'Y'
	again, err := backend.Fetch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again.Payload)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	store := New(backend, testLogger())
	require.NoError(t, store.Store(ctx, 42, "application/pdf", []byte("%PDF-1.4")))

	record, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), record.Payload)
	assert.Equal(t, "application/pdf", record.MimeType)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.TokenID{42}, ids)

	assert.True(t, store.Remove(ctx, 42))
	_, err = store.Get(ctx, 42)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestFactory_SchemeSelection(t *testing.T) {
	factory := NewFactory(testLogger())

	backend, err := factory.BackendFor("memory://")
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())

	dir := t.TempDir()
	backend, err = factory.BackendFor("file://" + dir)
	require.NoError(t, err)
	assert.Contains(t, backend.LocationURI(), "file://")

	backend, err = factory.BackendFor("s3://certificates/docs?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3-certificates", backend.Name())

	backend, err = factory.BackendFor("ipfs://127.0.0.1:5001/certs")
	require.NoError(t, err)
	assert.Equal(t, "ipfs-127.0.0.1-5001", backend.Name())

	_, err = factory.BackendFor("vault://whatever")
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}
