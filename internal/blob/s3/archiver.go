package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// ObjectStore is what the archiver writes to.
type ObjectStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, path string) (bool, error)
}

// AuditPruner deletes archived audit rows. Optional.
//
// DeleteThrough removes every row ordered at or before (createdAt, id) in
// the (created_at, id) order ListBefore reads in.
type AuditPruner interface {
	DeleteThrough(ctx context.Context, createdAt time.Time, id int64) (int64, error)
}

// ArchiverConfig tunes an archive run.
type ArchiverConfig struct {
	// Prefix is prepended to every object key.
	Prefix string
	// Limit caps the rows read per run. Zero means no cap.
	Limit int
	// Prune deletes the archived rows after a successful upload.
	Prune bool
}

// AuditArchiver copies audit rows older than a cutoff to object storage as
// JSONL.
type AuditArchiver struct {
	cfg    ArchiverConfig
	store  ObjectStore
	audit  domain.AuditStore
	pruner AuditPruner
	logger *slog.Logger
}

var _ domain.Archiver = (*AuditArchiver)(nil)

// NewArchiver creates an AuditArchiver. pruner may be nil.
func NewArchiver(cfg ArchiverConfig, store ObjectStore, audit domain.AuditStore, pruner AuditPruner, logger *slog.Logger) *AuditArchiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "archive"
	}
	return &AuditArchiver{
		cfg:    cfg,
		store:  store,
		audit:  audit,
		pruner: pruner,
		logger: logger.With(slog.String("component", "audit_archiver")),
	}
}

// ArchiveAudit uploads every audit row created before the cutoff and returns
// the number of rows archived. An archive that already exists for the same
// cutoff is not uploaded again.
func (a *AuditArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	path := archivePath(a.cfg.Prefix, before)

	exists, err := a.store.Exists(ctx, path)
	if err != nil {
		return 0, err
	}
	if exists {
		a.logger.Info("archive already present, skipping", slog.String("path", path))
		return 0, nil
	}

	entries, err := a.audit.ListBefore(ctx, before, a.cfg.Limit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	if len(buf) >= multipartThreshold {
		err = a.store.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.store.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))
	// The last uploaded row bounds the prune. Rows sharing its timestamp but
	// not uploaded by a capped run sort after it by id and survive.
	last := entries[len(entries)-1]

	var pruned int64
	if a.cfg.Prune && a.pruner != nil {
		pruned, err = a.pruner.DeleteThrough(ctx, last.CreatedAt, last.ID)
		if err != nil {
			return count, fmt.Errorf("s3blob: prune audit: %w", err)
		}
	}

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":    path,
		"count":   count,
		"pruned":  pruned,
		"before":  before.Format(time.RFC3339),
		"last_id": last.ID,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	a.logger.Info("audit archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("pruned", pruned),
	)
	return count, nil
}

// archivePath partitions archives by month of the cutoff:
//
//	archive/audit/2026-10/20261019T000000Z.jsonl
func archivePath(prefix string, before time.Time) string {
	b := before.UTC()
	return fmt.Sprintf("%s/audit/%s/%s.jsonl", prefix, b.Format("2006-01"), b.Format("20060102T150405Z"))
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
