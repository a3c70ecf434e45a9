package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mintmarket/marketd/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the query methods it actually calls, not the
// full domain store interfaces. The Postgres listing and auction stores
// satisfy these implicitly through their ListClosedBefore methods.
// ---------------------------------------------------------------------------

// ListingArchiveStore provides read access to closed listings for archival.
type ListingArchiveStore interface {
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Listing, error)
}

// AuctionArchiveStore provides read access to closed auctions for archival.
type AuctionArchiveStore interface {
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error)
}

// BlobWriter uploads a single object to the blob store.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl archives closed listings and auctions by querying the stores
// for old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; that is a separate, explicit step to be executed after the
// archive has been verified.
type ArchiveImpl struct {
	writer    BlobWriter
	listings  ListingArchiveStore
	auctions  AuctionArchiveStore
	audit     domain.AuditStore
	batchSize int
}

// NewArchiver creates a new ArchiveImpl reading at most batchSize rows per
// archive pass.
func NewArchiver(
	writer BlobWriter,
	listings ListingArchiveStore,
	auctions AuctionArchiveStore,
	audit domain.AuditStore,
	batchSize int,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		listings:  listings,
		auctions:  auctions,
		audit:     audit,
		batchSize: batchSize,
	}
}

// ArchiveListings queries closed listings last touched before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/listings/YYYY-MM.jsonl. The archival event is recorded in the audit
// log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveListings(ctx context.Context, before time.Time) (int64, error) {
	listings, err := a.listings.ListClosedBefore(ctx, before, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings query: %w", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(listings)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings marshal: %w", err)
	}

	path := archivePath("listings", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive listings upload: %w", err)
	}

	count := int64(len(listings))

	if err := a.audit.Log(ctx, "archive.listings", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive listings audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuctions queries closed auctions last touched before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/auctions/YYYY-MM.jsonl. The archival event is recorded in the audit
// log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveAuctions(ctx context.Context, before time.Time) (int64, error) {
	auctions, err := a.auctions.ListClosedBefore(ctx, before, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions query: %w", err)
	}
	if len(auctions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(auctions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions marshal: %w", err)
	}

	path := archivePath("auctions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions upload: %w", err)
	}

	count := int64(len(auctions))

	if err := a.audit.Log(ctx, "archive.auctions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive auctions audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/listings/2025-01.jsonl
//	archive/auctions/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
