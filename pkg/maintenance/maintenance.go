// Package maintenance implements the periodic sweeper: it reaps stale
// in-flight uploads, expired idempotency rows, and orphaned storage keys.
// It is also reachable synchronously through the admin cleanup endpoint.
package maintenance

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dfsingest/dfsingest/pkg/metadata"
	"github.com/dfsingest/dfsingest/pkg/objectstore"
)

// Config bounds the sweep's two TTLs.
type Config struct {
	StaleUploadTTL time.Duration
	IdempotencyTTL time.Duration
}

// Stats is the outcome of one sweep, returned to callers (the ticker loop
// logs it; the admin endpoint returns it as the response body).
type Stats struct {
	StaleUploadsDeleted    int64 `json:"stale_uploads_deleted"`
	IdempotencyRowsDeleted int64 `json:"idempotency_rows_deleted"`
	StorageKeysDeleted     int64 `json:"storage_keys_deleted"`
}

// Sweeper runs the maintenance sweep against a metadata repository and
// object store. It holds no other state — every dependency is constructed
// at startup.
type Sweeper struct {
	repo  metadata.Repository
	store objectstore.Store
	cfg   Config
}

// New builds a Sweeper bound to repo and store.
func New(repo metadata.Repository, store objectstore.Store, cfg Config) *Sweeper {
	return &Sweeper{repo: repo, store: store, cfg: cfg}
}

// Run performs one sweep: stale-upload reaping, idempotency-row expiry, and
// the storage-key reference sweep, in that order. Storage errors are
// best-effort — they're logged and swallowed so a flaky object store never
// blocks the database cleanup.
func (s *Sweeper) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	staleDeleted, err := s.reapStaleUploads(ctx)
	if err != nil {
		return stats, err
	}
	stats.StaleUploadsDeleted = staleDeleted

	idemDeleted, err := s.repo.DeleteExpiredIdempotencyRows(ctx, int64(s.cfg.IdempotencyTTL.Seconds()))
	if err != nil {
		return stats, err
	}
	stats.IdempotencyRowsDeleted = idemDeleted

	stats.StorageKeysDeleted = s.sweepOrphanKeys(ctx)

	return stats, nil
}

// reapStaleUploads deletes every INITIATED/IN_PROGRESS upload older than
// StaleUploadTTL: best-effort chunk and assembled-key deletion, then the
// upload row itself (chunks cascade).
func (s *Sweeper) reapStaleUploads(ctx context.Context) (int64, error) {
	stale, err := s.repo.SelectStaleUploads(ctx, int64(s.cfg.StaleUploadTTL.Seconds()))
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, upload := range stale {
		chunks, err := s.repo.ListChunksOrdered(ctx, upload.ID)
		if err == nil {
			for _, chunk := range chunks {
				if err := s.store.DeleteKey(ctx, chunk.StorageKey); err != nil {
					slog.Warn("maintenance: failed to delete chunk storage key", "upload_id", upload.ID, "key", chunk.StorageKey, "error", err)
				}
			}
		}
		if err := s.store.DeleteKey(ctx, objectstore.AssembledKey(upload.ID)); err != nil {
			slog.Debug("maintenance: no assembled key to delete", "upload_id", upload.ID, "error", err)
		}

		if err := s.repo.DeleteUpload(ctx, upload.ID); err != nil {
			slog.Error("maintenance: failed to delete stale upload row", "upload_id", upload.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// sweepOrphanKeys lists every storage key under "uploads/" and deletes any
// not referenced by a current chunk row, nor a live upload's assembled key.
// Listing failures are swallowed: the reference sweep is best-effort and
// must never block the rest of the tick.
func (s *Sweeper) sweepOrphanKeys(ctx context.Context) int64 {
	allKeys, err := s.store.ListKeys(ctx, "uploads/")
	if err != nil {
		slog.Warn("maintenance: orphan-key listing failed, skipping reference sweep", "error", err)
		return 0
	}

	referenced, err := s.repo.ListAllStorageKeys(ctx)
	if err != nil {
		slog.Warn("maintenance: failed to list referenced storage keys, skipping reference sweep", "error", err)
		return 0
	}
	referencedSet := make(map[string]struct{}, len(referenced))
	for _, k := range referenced {
		referencedSet[k] = struct{}{}
	}

	liveIDs, err := s.repo.ListLiveUploadIDs(ctx)
	if err != nil {
		slog.Warn("maintenance: failed to list live upload ids, skipping reference sweep", "error", err)
		return 0
	}
	liveAssembled := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		liveAssembled[objectstore.AssembledKey(id)] = struct{}{}
	}

	var deleted int64
	for _, key := range allKeys {
		if !strings.HasPrefix(key, "uploads/") {
			continue
		}
		if _, ok := referencedSet[key]; ok {
			continue
		}
		if _, ok := liveAssembled[key]; ok {
			continue
		}
		if err := s.store.DeleteKey(ctx, key); err != nil {
			slog.Warn("maintenance: failed to delete orphan storage key", "key", key, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// Start runs Run every interval until ctx is cancelled. Each tick's stats
// are logged; errors are logged and swallowed so one bad tick doesn't end
// the loop.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Run(ctx)
			if err != nil {
				slog.Error("maintenance sweep failed", "error", err)
				continue
			}
			slog.Info("maintenance sweep completed",
				"stale_uploads_deleted", stats.StaleUploadsDeleted,
				"idempotency_rows_deleted", stats.IdempotencyRowsDeleted,
				"storage_keys_deleted", stats.StorageKeysDeleted,
			)
		}
	}
}
