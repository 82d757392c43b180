package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	ref, err := store.PutBytes(ctx, "raw/sub_1/file.txt", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "s3://raw/sub_1/file.txt", ref)

	got, err := store.GetBytes(ctx, "raw/sub_1/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestMemoryStoreRejectsUnknownPrefix(t *testing.T) {
	store := storage.NewMemoryStore()
	tests := []string{"tmp/file.txt", "file.txt", "exports", "../raw/escape"}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := store.PutBytes(context.Background(), key, []byte("x"))
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := store.GetBytes(context.Background(), "raw/missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	payload := []byte("abc")
	_, err := store.PutBytes(ctx, "eval/x.json", payload)
	require.NoError(t, err)
	payload[0] = 'z'
	got, err := store.GetBytes(ctx, "eval/x.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
