package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
)

// ClosedAssetStore is the slice of the registry the archiver needs.
// store/postgres.AssetRegistry and store/memory.Registry satisfy it.
type ClosedAssetStore interface {
	GetAsset(ctx context.Context, id domain.AssetID) (domain.Asset, error)
	ListSettledEvents(ctx context.Context, id domain.AssetID) ([]domain.SettledEvent, error)
	ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.AssetID, error)
	MarkArchived(ctx context.Context, id domain.AssetID, at time.Time) error
}

// PaymentLister lists the payments recorded against an asset.
type PaymentLister interface {
	ListPayments(ctx context.Context, id domain.AssetID) ([]domain.Payment, error)
}

// ArchivedAsset is one JSONL line of an archive file.
type ArchivedAsset struct {
	Asset    domain.Asset          `json:"asset"`
	Settled  []domain.SettledEvent `json:"settled"`
	Payments []domain.Payment      `json:"payments,omitempty"`
}

// ArchiveImpl implements domain.Archiver. It exports assets that reached a
// final state to JSONL objects under archive/assets/ and marks them
// archived. Rows are not deleted from the primary store.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	reader   domain.BlobReader
	assets   ClosedAssetStore
	payments PaymentLister
	audit    domain.AuditStore
	batch    int
	logger   *slog.Logger
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl. payments and audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	assets ClosedAssetStore,
	payments PaymentLister,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		reader:   reader,
		assets:   assets,
		payments: payments,
		audit:    audit,
		batch:    500,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveClosedAssets exports up to one batch of closed assets last updated
// before the cutoff and returns how many were archived.
func (a *ArchiveImpl) ArchiveClosedAssets(ctx context.Context, before time.Time) (int64, error) {
	ids, err := a.assets.ListClosedBefore(ctx, before, a.batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	records := make([]ArchivedAsset, 0, len(ids))
	for _, id := range ids {
		rec, err := a.record(ctx, id)
		if err != nil {
			return 0, err
		}
		records = append(records, rec)
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path, err := a.freePath(ctx, before)
	if err != nil {
		return 0, err
	}
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	now := time.Now().UTC()
	for _, id := range ids {
		if err := a.assets.MarkArchived(ctx, id, now); err != nil {
			return 0, fmt.Errorf("s3blob: archive mark %s: %w", id.Hex(), err)
		}
	}

	count := int64(len(ids))
	a.logger.InfoContext(ctx, "assets archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.assets", map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			a.logger.WarnContext(ctx, "archiver: audit log failed", slog.String("error", err.Error()))
		}
	}
	return count, nil
}

func (a *ArchiveImpl) record(ctx context.Context, id domain.AssetID) (ArchivedAsset, error) {
	asset, err := a.assets.GetAsset(ctx, id)
	if err != nil {
		return ArchivedAsset{}, fmt.Errorf("s3blob: archive load %s: %w", id.Hex(), err)
	}
	settled, err := a.assets.ListSettledEvents(ctx, id)
	if err != nil {
		return ArchivedAsset{}, fmt.Errorf("s3blob: archive settled %s: %w", id.Hex(), err)
	}
	rec := ArchivedAsset{Asset: asset, Settled: settled}
	if a.payments != nil {
		if rec.Payments, err = a.payments.ListPayments(ctx, id); err != nil {
			return ArchivedAsset{}, fmt.Errorf("s3blob: archive payments %s: %w", id.Hex(), err)
		}
	}
	return rec, nil
}

// freePath picks the first unused archive object for the cutoff's month.
func (a *ArchiveImpl) freePath(ctx context.Context, before time.Time) (string, error) {
	base := fmt.Sprintf("archive/assets/%s", before.UTC().Format("2006-01"))
	for part := 0; ; part++ {
		path := fmt.Sprintf("%s/part-%04d.jsonl", base, part)
		if a.reader == nil {
			return path, nil
		}
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive path: %w", err)
		}
		if !exists {
			return path, nil
		}
	}
}

// ReadArchive loads every record of an archive object.
func ReadArchive(ctx context.Context, reader domain.BlobReader, path string) ([]ArchivedAsset, error) {
	body, err := reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out []ArchivedAsset
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec ArchivedAsset
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("s3blob: decode archive %s line %d: %w", path, len(out)+1, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read archive %s: %w", path, err)
	}
	return out, nil
}

// marshalJSONL serialises records as newline-delimited JSON.
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
