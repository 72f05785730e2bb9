package metastore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

func newTestStore(t *testing.T) *Store {
	store, err := New(t.TempDir(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := interfaces.DefaultMetadata()
	record.Recipient = "Ada Lovelace"
	record.Grade = "A+"

	require.NoError(t, store.Save(ctx, 101, record))

	loaded, err := store.Load(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestLoad_Absent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), 999)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestSave_ReplacesWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := interfaces.DefaultMetadata()
	first.Skills = []string{"Solidity", "Go"}
	first.AdditionalDetails = map[string]string{"Credit Hours": "3"}
	require.NoError(t, store.Save(ctx, 101, first))

	// A record without the optional fields fully replaces the prior one; no
	// field-level merge takes place.
	second := interfaces.MetadataRecord{
		Name:      "Replacement",
		IssueDate: "2026-01-15",
		Issuer:    "University Blockchain Program",
		Recipient: "Grace Hopper",
	}
	require.NoError(t, store.Save(ctx, 101, second))

	loaded, err := store.Load(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, second, loaded)
	assert.Empty(t, loaded.Skills)
	assert.Empty(t, loaded.AdditionalDetails)
}

func TestSave_ValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(context.Background(), 101, interfaces.MetadataRecord{Description: "no name"})
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = store.Load(context.Background(), 101)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound, "rejected save must not leave a record")
}

func TestConcurrentSaveAndLoad_NeverPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 101, interfaces.DefaultMetadata()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record := interfaces.DefaultMetadata()
			record.Description = "concurrent writer"
			assert.NoError(t, store.Save(ctx, 101, record))
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			loaded, err := store.Load(ctx, 101)
			assert.NoError(t, err)
			// A load must always see a complete record, never a torn write.
			_, jsonErr := json.Marshal(loaded)
			assert.NoError(t, jsonErr)
			assert.NotEmpty(t, loaded.Name)
		}()
	}
	wg.Wait()
}

func TestRemoveAndIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 2, interfaces.DefaultMetadata()))
	require.NoError(t, store.Save(ctx, 1, interfaces.DefaultMetadata()))

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.TokenID{1, 2}, ids)

	assert.True(t, store.Remove(ctx, 1))
	assert.False(t, store.Remove(ctx, 1))

	ids, err = store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.TokenID{2}, ids)
}
