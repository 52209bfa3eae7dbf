package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfsingest/dfsingest/pkg/metadata"
	"github.com/dfsingest/dfsingest/pkg/metadata/memstore"
	"github.com/dfsingest/dfsingest/pkg/objectstore/local"
)

func newUpload(t *testing.T, repo metadata.Repository, id string, totalChunks int) {
	t.Helper()
	require.NoError(t, repo.CreateUpload(context.Background(), &metadata.Upload{
		ID:          id,
		OwnerID:     "owner-1",
		FileName:    "a.bin",
		FileSize:    int64(totalChunks) * 4,
		ChunkSize:   4,
		TotalChunks: totalChunks,
		Status:      metadata.UploadStatusInitiated,
	}, "", ""))
}

func TestRunReapsStaleUploads(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	store, err := local.New(local.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	newUpload(t, repo, "stale-upload", 1)
	time.Sleep(2 * time.Millisecond)

	sweeper := New(repo, store, Config{StaleUploadTTL: 0, IdempotencyTTL: time.Hour})
	stats, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.StaleUploadsDeleted)

	_, err = repo.GetUpload(ctx, "stale-upload")
	assert.ErrorIs(t, err, metadata.ErrUploadNotFound)
}

func TestRunKeepsFreshUploads(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	store, err := local.New(local.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	newUpload(t, repo, "fresh-upload", 1)

	sweeper := New(repo, store, Config{StaleUploadTTL: time.Hour, IdempotencyTTL: time.Hour})
	stats, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.StaleUploadsDeleted)

	_, err = repo.GetUpload(ctx, "fresh-upload")
	assert.NoError(t, err)
}

func TestRunExpiresIdempotencyRows(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	store, err := local.New(local.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	newUpload(t, repo, "upload-1", 1)
	require.NoError(t, repo.CreateUpload(ctx, &metadata.Upload{
		ID: "upload-2", OwnerID: "owner-1", FileName: "b.bin", FileSize: 4, ChunkSize: 4,
		TotalChunks: 1, Status: metadata.UploadStatusInitiated,
	}, "init-key-1", "fp-1"))
	time.Sleep(2 * time.Millisecond)

	sweeper := New(repo, store, Config{StaleUploadTTL: time.Hour, IdempotencyTTL: 0})
	stats, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.IdempotencyRowsDeleted)
}

func TestRunDeletesOrphanedStorageKeys(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New()
	store, err := local.New(local.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	newUpload(t, repo, "upload-1", 2)
	key, _, err := store.WriteChunk(ctx, "upload-1", 0, []byte("abcd"), "")
	require.NoError(t, err)
	require.NoError(t, repo.UpsertChunk(ctx, metadata.ChunkUpsert{
		UploadID: "upload-1", ChunkIndex: 0, SizeBytes: 4, StorageKey: key,
	}, "", ""))

	// An orphan key with no matching chunk row and no live assembled key.
	_, _, err = store.WriteChunk(ctx, "orphan-upload", 0, []byte("zzzz"), "")
	require.NoError(t, err)

	sweeper := New(repo, store, Config{StaleUploadTTL: time.Hour, IdempotencyTTL: time.Hour})
	stats, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.StorageKeysDeleted)

	keys, err := store.ListKeys(ctx, "uploads/")
	require.NoError(t, err)
	assert.Contains(t, keys, key)
	assert.NotContains(t, keys, "uploads/orphan-upload/chunk_0")
}
